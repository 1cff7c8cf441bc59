package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleManager_Process() {
	manager, _ := NewManager(newMemoryStore(), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	sendReceipt := func(context.Context) error {
		fmt.Println("sent payment receipt")
		return nil
	}
	for range 2 {
		if ran, _ := manager.Process(context.Background(), "customer-notifications", eventID, sendReceipt); !ran {
			fmt.Println("already processed")
		}
	}
	// Output:
	// sent payment receipt
	// already processed
}
