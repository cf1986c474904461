package conf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvFallsThroughToEnvironment(t *testing.T) {
	const key = "BILLING_CONF_TEST_FALLTHROUGH"
	defer func() {
		_ = UnsetEnv(t, key)
	}()

	os.Setenv(key, "somevalue")
	assert.Equal(t, "somevalue", GetEnv(key))
}

func TestSetAndUnsetEnv(t *testing.T) {
	const key = "BILLING_CONF_TEST_SET"

	require.NoError(t, SetEnv(t, key, "abc"))
	assert.Equal(t, "abc", GetEnv(key))

	require.NoError(t, UnsetEnv(t, key))
	assert.Equal(t, "", GetEnv(key))
}

func TestLookupEnv(t *testing.T) {
	const key = "BILLING_CONF_TEST_LOOKUP"
	defer func() {
		_ = UnsetEnv(t, key)
	}()

	_, found := LookupEnv(key)
	assert.False(t, found)

	require.NoError(t, SetEnv(t, key, "xyz"))
	v, found := LookupEnv(key)
	assert.True(t, found)
	assert.Equal(t, "xyz", v)
}

func TestCheckout(t *testing.T) {
	type cfg struct {
		Untagged string
		Name     string  `conf:"BILLING_CONF_TEST_NAME"`
		Workers  int     `conf:"BILLING_CONF_TEST_WORKERS" conf_default:"4"`
		Verbose  bool    `conf:"BILLING_CONF_TEST_VERBOSE" conf_default:"true"`
		Rate     float64 `conf:"BILLING_CONF_TEST_RATE" conf_default:"0.2"`
	}

	defer func() {
		_ = UnsetEnv(t, "BILLING_CONF_TEST_NAME")
		_ = UnsetEnv(t, "BILLING_CONF_TEST_WORKERS")
	}()

	require.NoError(t, SetEnv(t, "BILLING_CONF_TEST_NAME", "billing"))
	require.NoError(t, SetEnv(t, "BILLING_CONF_TEST_WORKERS", "12"))

	var c cfg
	require.NoError(t, Checkout(&c))
	assert.Equal(t, "billing", c.Name)
	assert.Equal(t, 12, c.Workers)
	assert.True(t, c.Verbose)
	assert.Equal(t, 0.2, c.Rate)
	assert.Empty(t, c.Untagged)
}

func TestCheckoutRejectsNonPointer(t *testing.T) {
	type cfg struct{}
	assert.Error(t, Checkout(cfg{}))

	var n int
	assert.Error(t, Checkout(&n))
}

func TestCheckoutBadValue(t *testing.T) {
	type cfg struct {
		Workers int `conf:"BILLING_CONF_TEST_BAD_INT"`
	}
	defer func() {
		_ = UnsetEnv(t, "BILLING_CONF_TEST_BAD_INT")
	}()

	require.NoError(t, SetEnv(t, "BILLING_CONF_TEST_BAD_INT", "not-a-number"))

	var c cfg
	assert.Error(t, Checkout(&c))
}
