package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
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

	itemrepo repository.Repository[catalogdomain.Item]
	taxrepo  repository.Repository[catalogdomain.TaxRate]
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		itemrepo: repository.ProvideStore[catalogdomain.Item](p.DB),
		taxrepo:  repository.ProvideStore[catalogdomain.TaxRate](p.DB),
	}
}

func (s *Service) GetItem(ctx context.Context, ownerID, itemID snowflake.ID) (*catalogdomain.Item, error) {
	item, err := s.itemrepo.FindOne(ctx, &catalogdomain.Item{ID: itemID, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, catalogdomain.ErrItemNotFound
	}
	return item, nil
}

func (s *Service) GetPrice(ctx context.Context, ownerID, itemID snowflake.ID) (int64, error) {
	item, err := s.GetItem(ctx, ownerID, itemID)
	if err != nil {
		return 0, err
	}
	return item.UnitAmount, nil
}

func (s *Service) GetPrices(ctx context.Context, ownerID snowflake.ID, itemIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	if len(itemIDs) == 0 {
		return map[snowflake.ID]int64{}, nil
	}

	var items []catalogdomain.Item
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, itemIDs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	prices := make(map[snowflake.ID]int64, len(items))
	for _, item := range items {
		prices[item.ID] = item.UnitAmount
	}
	for _, id := range itemIDs {
		if _, ok := prices[id]; !ok {
			return nil, catalogdomain.ErrItemNotFound
		}
	}
	return prices, nil
}

func (s *Service) GetTaxRate(ctx context.Context, ownerID, taxID snowflake.ID) (int64, error) {
	tax, err := s.taxrepo.FindOne(ctx, &catalogdomain.TaxRate{ID: taxID, OwnerID: ownerID})
	if err != nil {
		return 0, err
	}
	if tax == nil {
		return 0, catalogdomain.ErrTaxNotFound
	}
	return tax.RateBps, nil
}
