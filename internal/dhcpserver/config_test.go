package dhcpserver

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		PoolNetwork: netip.MustParsePrefix("10.0.0.0/24"),
		ServerAddr:  netip.MustParseAddr("10.0.0.1"),
		MinAddr:     netip.MustParseAddr("10.0.0.10"),
		MaxAddr:     netip.MustParseAddr("10.0.0.100"),
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		c := validConfig()
		require.NoError(t, c.Validate())
		assert.Equal(t, DefaultLeaseTime, c.LeaseTime)
		assert.Equal(t, DefaultRenewTime, c.RenewTime)
		assert.Equal(t, DefaultRebindTime, c.RebindTime)
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		var c *Config
		assert.ErrorIs(t, c.Validate(), errNilConfig)
	})

	t.Run("server_in_range", func(t *testing.T) {
		t.Parallel()
		c := validConfig()
		c.ServerAddr = netip.MustParseAddr("10.0.0.50")
		assert.Error(t, c.Validate())
	})

	t.Run("min_greater_than_max", func(t *testing.T) {
		t.Parallel()
		c := validConfig()
		c.MinAddr, c.MaxAddr = c.MaxAddr, c.MinAddr
		assert.Error(t, c.Validate())
	})

	t.Run("range_outside_network", func(t *testing.T) {
		t.Parallel()
		c := validConfig()
		c.MaxAddr = netip.MustParseAddr("10.0.1.100")
		assert.Error(t, c.Validate())
	})
}
