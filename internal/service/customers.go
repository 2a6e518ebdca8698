package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

// Customers manages customer records
type Customers struct {
	store repository.Store
	log   *logrus.Logger
}

// NewCustomers initializes customer management
func NewCustomers(store repository.Store, log *logrus.Logger) *Customers {
	return &Customers{store: store, log: log}
}

func validateCustomer(c *models.Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if c.Name == "" {
		return fmt.Errorf("customer name is required: %w", models.ErrInvalidArgument)
	}
	return nil
}

// Save creates a customer
func (s *Customers) Save(ctx context.Context, c models.Customer) (*models.Customer, error) {
	if err := validateCustomer(&c); err != nil {
		return nil, err
	}
	if err := s.store.CreateCustomer(ctx, &c); err != nil {
		return nil, err
	}
	s.log.Infof("Customer created: %d", c.ID)
	return &c, nil
}

// Update replaces a customer's name and contact fields
func (s *Customers) Update(ctx context.Context, c models.Customer) (*models.Customer, error) {
	if err := validateCustomer(&c); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCustomer(ctx, &c); err != nil {
		return nil, err
	}
	s.log.Infof("Customer updated: %d", c.ID)
	return &c, nil
}

// Delete removes a customer that owns no accounts
func (s *Customers) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.log.Infof("Customer deleted: %d", id)
	return nil
}

func (s *Customers) Get(ctx context.Context, id int64) (*models.Customer, error) {
	return s.store.LoadCustomer(ctx, id)
}

func (s *Customers) List(ctx context.Context) ([]models.Customer, error) {
	return s.store.ListCustomers(ctx)
}

// Search matches keyword against customer names, ignoring case
func (s *Customers) Search(ctx context.Context, keyword string) ([]models.Customer, error) {
	return s.store.SearchCustomers(ctx, strings.TrimSpace(keyword))
}
