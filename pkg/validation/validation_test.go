package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "order-router", SanitizeString("  order-router  "))
	assert.Equal(t, "abc", SanitizeString("a\x00b\x01c"))
	assert.Equal(t, "a\nb\tc", SanitizeString("a\nb\tc"))
}

func TestValidateServiceID(t *testing.T) {
	assert.NoError(t, ValidateServiceID("order-router"))
	assert.NoError(t, ValidateServiceID("svc_01"))
	assert.NoError(t, ValidateServiceID("  market-data  "))

	assert.Error(t, ValidateServiceID(""))
	assert.Error(t, ValidateServiceID("ab"))
	assert.Error(t, ValidateServiceID("Order-Router"))
	assert.Error(t, ValidateServiceID("-leading-hyphen"))
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("admin"))
	assert.NoError(t, ValidateUsername("ops@tradefleet.io"))

	assert.Error(t, ValidateUsername(""))
	assert.Error(t, ValidateUsername("ab"))
}

func TestValidateTargetInstances(t *testing.T) {
	assert.NoError(t, ValidateTargetInstances(5, 2, 20))
	assert.NoError(t, ValidateTargetInstances(2, 2, 20))
	assert.NoError(t, ValidateTargetInstances(20, 2, 20))

	assert.Error(t, ValidateTargetInstances(0, 2, 20))
	assert.Error(t, ValidateTargetInstances(1, 2, 20))
	assert.Error(t, ValidateTargetInstances(21, 2, 20))
}
