package repository

import "errors"

var ErrGroupOrderNotFound = errors.New("group order not found")
var ErrParticipationNotFound = errors.New("participation not found")
var ErrProductNotFound = errors.New("product not found")
var ErrUserNotFound = errors.New("user not found")
