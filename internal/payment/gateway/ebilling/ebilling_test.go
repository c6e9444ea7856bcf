package ebilling

import (
	"testing"

	"github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	gw := New(Config{BaseURL: "https://api.ebilling.test", APIKey: "eb_test"})

	cases := []struct {
		name    string
		payload string
		want    domain.ProviderEvent
		wantErr error
	}{
		{
			name:    "paid bill settles",
			payload: `{"bill_id":"bill_1","state":"paid","payment_system_name":"airtelmoney","transaction_id":"tx_1"}`,
			want:    domain.ProviderEvent{Provider: "ebilling", ProviderReference: "bill_1", Status: domain.StatusSucceeded},
		},
		{
			name:    "expired bill fails with state code",
			payload: `{"bill_id":"bill_2","state":"expired"}`,
			want:    domain.ProviderEvent{Provider: "ebilling", ProviderReference: "bill_2", Status: domain.StatusFailed, FailureCode: "bill_expired"},
		},
		{
			name:    "pending bill is ignored",
			payload: `{"bill_id":"bill_3","state":"pending"}`,
			wantErr: domain.ErrEventIgnored,
		},
		{
			name:    "unknown state is rejected",
			payload: `{"bill_id":"bill_4","state":"frozen"}`,
			wantErr: domain.ErrUnknownStatus,
		},
		{
			name:    "missing bill id is invalid",
			payload: `{"state":"paid"}`,
			wantErr: domain.ErrInvalidPayload,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := gw.ParseEvent([]byte(tc.payload))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
