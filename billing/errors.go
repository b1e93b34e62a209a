package billing

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrQueryFailed     = errors.New("product query failed")
	ErrNilSkuDetails   = errors.New("sku details are required")
)

// ResponseError carries a backend response code through error-returning code paths.
type ResponseError struct {
	Code ResponseCode
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("billing backend responded %s", e.Code)
}

// ProductNotFoundError is a local failure: the backend answered the metadata
// query successfully but returned no record for the product.
type ProductNotFoundError struct {
	Sku  string
	Type SkuType
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("sku %s (%s) doesn't exist", e.Sku, e.Type)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// QueryFailedError is a local failure: the metadata query needed before a
// purchase could be launched did not succeed.
type QueryFailedError struct {
	Sku  string
	Type SkuType
	Code ResponseCode
}

func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("failed to query details for sku %s (%s): %s", e.Sku, e.Type, e.Code)
}

func (e *QueryFailedError) Is(target error) bool {
	return target == ErrQueryFailed
}
