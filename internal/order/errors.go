package order

import "errors"

var (
	ErrBadRequest    = errors.New("order: bad request")
	ErrUnknownOrder  = errors.New("order: unknown order id")
	ErrTerminalOrder = errors.New("order: order already terminal")
)
