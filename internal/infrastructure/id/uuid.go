package id

import "github.com/google/uuid"

// UUIDGenerator issues random UUIDs for holds and orders.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
