package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrCustomerNotFound = errors.New("customer_not_found")

type Service interface {
	Get(ctx context.Context, ownerID, id snowflake.ID) (*Customer, error)
}
