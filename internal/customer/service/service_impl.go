package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/invora/internal/customer/domain"
	"github.com/smallbiznis/invora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	customerrepo repository.Repository[customerdomain.Customer]
}

func NewService(p ServiceParam) customerdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("customer.service"),

		customerrepo: repository.ProvideStore[customerdomain.Customer](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, ownerID, id snowflake.ID) (*customerdomain.Customer, error) {
	customer, err := s.customerrepo.FindOne(ctx, &customerdomain.Customer{ID: id, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrCustomerNotFound
	}
	return customer, nil
}
