package memory_test

import (
	"testing"

	"gigboard/internal/store"
	"gigboard/internal/store/memory"
	"gigboard/internal/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) *store.Store { return memory.New() })
}
