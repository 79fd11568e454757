package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("record not found")

	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrInvalidStatus      = errors.New("unknown order status")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInsufficientStock
	KindUnavailable
	KindEmptyCart
	KindIllegalState
	KindInvalid
	KindConflict
	KindTxFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case KindUnavailable:
		return "PRODUCT_UNAVAILABLE"
	case KindEmptyCart:
		return "EMPTY_CART"
	case KindIllegalState:
		return "ILLEGAL_STATE"
	case KindInvalid:
		return "INVALID"
	case KindConflict:
		return "CONFLICT"
	case KindTxFailed:
		return "TRANSACTION_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entity names used in NotFoundError.
const (
	EntityProduct  = "product"
	EntityUser     = "user"
	EntityCart     = "cart"
	EntityCartLine = "cart line"
	EntityOrder    = "order"
)

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) OutOfStock() bool { return e.Available <= 0 }

type ProductUnavailableError struct {
	ProductID   string
	ProductName string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q is no longer available", e.ProductName)
}

type IllegalStateError struct {
	OrderID string
	Status  Status
	Op      string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s order %s in status %s", e.Op, e.OrderID, e.Status)
}

// TxFailedError means the transaction was rolled back and no changes were applied.
type TxFailedError struct {
	Op  string
	Err error
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("%s: transaction failed, no changes applied: %v", e.Op, e.Err)
}

func (e *TxFailedError) Unwrap() error { return e.Err }

// KindOf classifies err. Unknown errors map to KindUnknown.
func KindOf(err error) Kind {
	var (
		nf  *NotFoundError
		ins *InsufficientStockError
		un  *ProductUnavailableError
		ill *IllegalStateError
		tx  *TxFailedError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &tx):
		return KindTxFailed
	case errors.As(err, &nf), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &ins):
		return KindInsufficientStock
	case errors.As(err, &un):
		return KindUnavailable
	case errors.As(err, &ill):
		return KindIllegalState
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidStatus):
		return KindInvalid
	case errors.Is(err, ErrCheckoutInProgress):
		return KindConflict
	default:
		return KindUnknown
	}
}

// IsDomain reports whether err is one of the typed business failures above,
// as opposed to an infrastructure error.
func IsDomain(err error) bool {
	k := KindOf(err)
	return k != KindUnknown && k != KindTxFailed
}
