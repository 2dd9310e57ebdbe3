package huolala_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/huolala/pkg/huolala"
)

func TestAppAPI_CityList(t *testing.T) {
	transport := huolala.NewMockTransport()
	transport.Responses[huolala.APIProductionServer] = []byte(`{"ret":0,"msg":"success","data":[{"city_id":1001}]}`)
	api := huolala.NewAppAPI(newTestClient(huolala.NewConfig("AK1", "S1"), transport))

	result, err := api.CityList(context.Background())

	require.NoError(t, err)
	assert.Len(t, result["data"], 1)

	body := decodeBody(t, transport.Requests()[0].Body)
	assert.Equal(t, huolala.MethodCityList, body["api_method"])
	assert.NotContains(t, body, "api_data")
	assert.NotContains(t, body, "access_token")
}

func TestAppAPI_CityInfo(t *testing.T) {
	transport := huolala.NewMockTransport()
	api := huolala.NewAppAPI(newTestClient(huolala.NewConfig("AK1", "S1"), transport))

	_, err := api.CityInfo(context.Background(), 1001)

	require.NoError(t, err)
	body := decodeBody(t, transport.Requests()[0].Body)
	assert.Equal(t, huolala.MethodCityInfo, body["api_method"])
	assert.Equal(t, `{"city_id":1001}`, body["api_data"])
	assert.NotContains(t, body, "access_token")
}

func TestAppAPI_PriceCalculate(t *testing.T) {
	transport := huolala.NewMockTransport()
	provider := &staticProvider{token: "AT1"}
	api := huolala.NewAppAPI(newTestClient(huolala.NewConfig("AK1", "S1"), transport,
		huolala.WithAccessTokenProvider(provider)))

	_, err := api.PriceCalculate(context.Background(), map[string]any{"city_id": 1001, "order_vehicle_id": 5})

	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	body := decodeBody(t, transport.Requests()[0].Body)
	assert.Equal(t, huolala.MethodPriceCalculate, body["api_method"])
	assert.Equal(t, "AT1", body["access_token"])

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(body["api_data"].(string)), &data))
	assert.EqualValues(t, 1001, data["city_id"])
}

func TestAppAPI_PriceCalculate_RequiresProvider(t *testing.T) {
	transport := huolala.NewMockTransport()
	api := huolala.NewAppAPI(newTestClient(huolala.NewConfig("AK1", "S1"), transport))

	_, err := api.PriceCalculate(context.Background(), map[string]any{"city_id": 1001})

	assert.ErrorIs(t, err, huolala.ErrConfiguration)
	assert.Empty(t, transport.Requests())
}

func TestAppAPI_CityInfos(t *testing.T) {
	transport := huolala.NewMockTransport()
	transport.SimulateLatency = 10 * time.Millisecond
	transport.OnSend = func(ctx context.Context, url string, body []byte) ([]byte, error) {
		if strings.Contains(string(body), `city_id\":2`) {
			return nil, huolala.NewTransportError(huolala.StageSend, "HTTP_500", "boom")
		}
		return []byte(`{"ret":0,"data":{}}`), nil
	}
	api := huolala.NewAppAPI(newTestClient(huolala.NewConfig("AK1", "S1"), transport))

	results, errs := api.CityInfos(context.Background(), []int{1, 2, 3})

	assert.Len(t, results, 2)
	assert.Contains(t, results, 1)
	assert.Contains(t, results, 3)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], huolala.ErrTransport)
	assert.Contains(t, errs[0].Error(), "city 2")
	assert.Equal(t, 3, len(transport.Requests()))
}

func TestAppAPI_Client(t *testing.T) {
	client := newTestClient(huolala.NewConfig("AK1", "S1"), huolala.NewMockTransport())
	assert.Same(t, client, huolala.NewAppAPI(client).Client())
}
