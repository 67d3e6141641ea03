package validator_test

import (
	"fmt"

	"github.com/andrewh/obscheck/pkg/observation"
	"github.com/andrewh/obscheck/pkg/validator"
)

func Example() {
	reg := validator.NewTestRegistry(validator.WithCallSites(false))

	obs, _ := observation.Start("checkout", reg)
	_ = obs.Stop()
	err := obs.Stop()

	fmt.Println(err)
	fmt.Printf("%+v\n", err)
	// Output:
	// Invalid stop: Observation has already been stopped
	// validator.InvalidObservationError: Invalid stop: Observation has already been stopped
	// START: unknown
	// STOP: unknown
	// STOP: unknown
}
