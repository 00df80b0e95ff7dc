package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}
	return New(opts, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sampleDraft() models.OrderDraft {
	return models.OrderDraft{
		Lines: []models.CartLine{{
			ProductID:            "mango-1",
			Name:                 "Mango Pickle",
			UnitPrice:            decimal.NewFromInt(150),
			Quantity:             2,
			SelectedWeightOption: "500g",
		}},
		Customer: models.CustomerInfo{
			Email: "asha@example.com", FirstName: "Asha", LastName: "Rao",
			Address: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001",
		},
		Totals: models.Totals{
			Subtotal: decimal.NewFromInt(300),
			Discount: decimal.Zero,
			Tax:      decimal.RequireFromString("54.004"),
			Shipping: decimal.NewFromInt(50),
			Total:    decimal.RequireFromString("404.004"),
		},
		PaymentMethod: models.PaymentMethodCOD,
	}
}

func TestCreateOrder_SendsRoundedPayloadAndIdempotencyKey(t *testing.T) {
	var gotKey string
	var got map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"order": map[string]any{
				"_id": "665f1c", "orderNumber": "PK-1001", "status": "pending",
				"paymentStatus": "pending", "paymentMethod": "cod", "total": 404,
			},
		})
	}, Options{})

	order, err := client.CreateOrder(context.Background(), sampleDraft(), "key-123")
	require.NoError(t, err)

	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, "665f1c", order.ID)
	assert.Equal(t, "PK-1001", order.OrderNumber)
	assert.Equal(t, 404.0, got["total"])
	assert.Equal(t, 54.0, got["tax"])
	assert.Equal(t, "cod", got["paymentMethod"])

	items := got["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "500g", items[0].(map[string]any)["weight"])
}

func TestCreateOrder_IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "waking up"})
	}, Options{MaxRetries: 3})

	_, err := client.CreateOrder(context.Background(), sampleDraft(), "k")
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, CauseServerBusy, Classify(err))
}

func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   Cause
	}{
		{http.StatusTooManyRequests, CauseRateLimited},
		{http.StatusUnauthorized, CauseAuth},
		{http.StatusForbidden, CauseAuth},
		{http.StatusBadGateway, CauseServerBusy},
		{http.StatusServiceUnavailable, CauseServerBusy},
		{http.StatusGatewayTimeout, CauseServerBusy},
		{http.StatusBadRequest, CauseGeneric},
		{http.StatusInternalServerError, CauseGeneric},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]string{"message": "nope"})
			}, Options{})

			_, err := client.CreateOrder(context.Background(), sampleDraft(), "k")
			require.Error(t, err)
			assert.Equal(t, tc.want, Classify(err))
			assert.NotEmpty(t, UserMessage(err))
		})
	}
}

func TestClassify_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{})
	}, Options{HTTPClient: &http.Client{Timeout: 20 * time.Millisecond}})

	_, err := client.CreateOrder(context.Background(), sampleDraft(), "k")
	require.Error(t, err)
	assert.Equal(t, CauseTimeout, Classify(err))
}

func TestCreateOrder_ExpiredTokenShortCircuits(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, Options{AuthToken: token})

	_, err = client.CreateOrder(context.Background(), sampleDraft(), "k")
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, CauseAuth, Classify(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestCreateOrder_SendsBearerToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusCreated, map[string]any{"order": map[string]any{"_id": "o1"}})
	}, Options{AuthToken: token})

	_, err = client.CreateOrder(context.Background(), sampleDraft(), "k")
	require.NoError(t, err)
}

func TestBreaker_OpensAfterConsecutiveServerFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, Options{})

	for i := 0; i < 5; i++ {
		_, err := client.CreateOrder(context.Background(), sampleDraft(), "k")
		require.Error(t, err)
	}

	_, err := client.CreateOrder(context.Background(), sampleDraft(), "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, CauseServerBusy, Classify(err))
	assert.Equal(t, int32(5), calls.Load())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, Options{})

	for i := 0; i < 8; i++ {
		_, err := client.CreateOrder(context.Background(), sampleDraft(), "k")
		require.Error(t, err)
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}
	assert.Equal(t, int32(8), calls.Load())
}

func TestCreatePaymentAndVerify(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/orders/create-payment":
			assert.Equal(t, "o1", body["orderId"])
			assert.Equal(t, 404.0, body["amount"])
			writeJSON(w, http.StatusOK, map[string]any{
				"key":           "rzp_test_abc",
				"razorpayOrder": map[string]any{"id": "order_9A", "amount": 40400, "currency": "INR"},
			})
		case "/orders/verify-payment":
			ok := body["razorpay_signature"] == "good-sig"
			writeJSON(w, http.StatusOK, map[string]any{"success": ok, "message": "signature mismatch"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}, Options{})

	intent, err := client.CreatePayment(context.Background(), "o1", decimal.RequireFromString("404.004"))
	require.NoError(t, err)
	assert.Equal(t, "order_9A", intent.GatewayOrderID)
	assert.Equal(t, int64(40400), intent.AmountMinor)
	assert.Equal(t, "rzp_test_abc", intent.KeyID)

	err = client.VerifyPayment(context.Background(), PaymentVerification{
		OrderID: "o1", GatewayOrderID: "order_9A", GatewayPaymentID: "pay_1", Signature: "good-sig",
	})
	require.NoError(t, err)

	err = client.VerifyPayment(context.Background(), PaymentVerification{
		OrderID: "o1", GatewayOrderID: "order_9A", GatewayPaymentID: "pay_1", Signature: "forged",
	})
	assert.ErrorIs(t, err, ErrVerificationRejected)
}

func TestCalculateShipping_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "411001", body["pincode"])
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"zoneName": "West", "shippingCost": 50, "isFreeDelivery": false,
				"freeDeliveryAbove": 999, "deliveryTime": "3-5 days",
			},
		})
	}, Options{MaxRetries: 2})

	quote, err := client.CalculateShipping(context.Background(), "411001", decimal.NewFromInt(300))
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "West", quote.ZoneName)
	assert.True(t, decimal.NewFromInt(50).Equal(quote.Cost))
	assert.True(t, decimal.NewFromInt(999).Equal(quote.FreeDeliveryAbove))
}

func TestCalculateShipping_NegativeRetriesMeansSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Options{MaxRetries: -1})

	_, err := client.CalculateShipping(context.Background(), "411001", decimal.NewFromInt(300))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	_, err = withRetry(context.Background(), -1, func() (int, error) {
		calls.Add(1)
		return 0, &APIError{StatusCode: http.StatusServiceUnavailable, Path: "/shipping/calculate"}
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCalculateShipping_UnknownZone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "not serviceable"})
	}, Options{})

	_, err := client.CalculateShipping(context.Background(), "999999", decimal.NewFromInt(300))
	assert.Error(t, err)
}

func TestActiveCoupon(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/offers/active", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]any{
				"active": true,
				"coupon": map[string]any{"code": " PICKLE10 ", "discount": 10, "minOrderAmount": 500, "description": "10% off"},
			})
		}, Options{})

		coupon, err := client.ActiveCoupon(context.Background())
		require.NoError(t, err)
		require.NotNil(t, coupon)
		assert.Equal(t, "PICKLE10", coupon.Code)
		assert.True(t, decimal.NewFromInt(500).Equal(coupon.MinOrderAmount))
	})

	t.Run("inactive", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"active": false})
		}, Options{})

		coupon, err := client.ActiveCoupon(context.Background())
		require.NoError(t, err)
		assert.Nil(t, coupon)
	})

	t.Run("not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, Options{})

		coupon, err := client.ActiveCoupon(context.Background())
		require.NoError(t, err)
		assert.Nil(t, coupon)
	})
}
