package option

import (
	"fmt"

	"gorm.io/gorm"
)

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (c Condition) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
}

// ApplyOperator builds a comparison option against a single column.
func ApplyOperator(c Condition) QueryOption { return c }

type sortBy struct {
	column string
	desc   bool
}

func (s sortBy) Apply(db *gorm.DB) *gorm.DB {
	dir := "ASC"
	if s.desc {
		dir = "DESC"
	}
	return db.Order(fmt.Sprintf("%s %s", s.column, dir))
}

func WithSortBy(column string, desc bool) QueryOption {
	return sortBy{column: column, desc: desc}
}

type limit struct {
	n int
}

func (l limit) Apply(db *gorm.DB) *gorm.DB {
	if l.n <= 0 {
		return db
	}
	return db.Limit(l.n)
}

func WithLimit(n int) QueryOption { return limit{n: n} }
