package store

import (
	"context"
	"sync"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"
)

type MemoryStore struct {
	orders map[string]models.Order
	mutex  sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]models.Order),
	}
}

func (s *MemoryStore) Create(_ context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.OrderID]; exists {
		return status.ErrOrderExists
	}

	s.orders[order.OrderID] = *order
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (*models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, status.ErrOrderNotFound
	}

	return &order, nil
}

func (s *MemoryStore) Finalize(_ context.Context, orderID string, t models.Transition) (*models.Order, FinalizeResult, error) {
	if err := t.Validate(); err != nil {
		return nil, Conflict, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, Conflict, status.ErrOrderNotFound
	}

	result, changed := decide(&order, t)
	if changed {
		s.orders[orderID] = order
	}

	return &order, result, nil
}
