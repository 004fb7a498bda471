package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"1.5s"`, want: 1500 * time.Millisecond},
		{name: "minutes", input: `"5m"`, want: 5 * time.Minute},
		{name: "nanoseconds", input: `1000`, want: time.Microsecond},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.AsDuration())
		})
	}
}

func TestNilDuration(t *testing.T) {
	var d *Duration
	assert.Equal(t, time.Duration(0), d.AsDuration())
}

func TestBootstrapScan(t *testing.T) {
	raw := `{
		"data": {"driver": "memory"},
		"billing": {
			"services": {"basic_scan": 7},
			"complexity": {"premium": "2.5", "basic": 0.5},
			"packages": [{"id": "starter", "price": "9.99", "base_credits": 500, "bonus_credits": 100}],
			"lock_expiry": "3s"
		}
	}`
	var bc Bootstrap
	require.NoError(t, json.Unmarshal([]byte(raw), &bc))

	assert.Equal(t, "memory", bc.Data.Driver)
	assert.Equal(t, int64(7), bc.Billing.Services["basic_scan"])
	assert.Equal(t, "2.5", bc.Billing.Complexity["premium"].String())
	assert.Equal(t, "0.5", bc.Billing.Complexity["basic"].String())
	require.Len(t, bc.Billing.Packages, 1)
	assert.Equal(t, "9.99", bc.Billing.Packages[0].Price.String())
	assert.Equal(t, 3*time.Second, bc.Billing.LockExpiry.AsDuration())
}
