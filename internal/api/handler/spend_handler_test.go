package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newSpendRouter() (*gin.Engine, *MockSpendService) {
	spend := new(MockSpendService)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	h := NewSpendHandler(logger, spend)

	router := setupTestRouter()
	router.POST("/spend/authorize", h.Authorize)
	return router, spend
}

func authorizeRequest(router http.Handler, req AuthorizeSpendRequest) *httptest.ResponseRecorder {
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, "/spend/authorize", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httpReq)
	return rr
}

func TestSpendHandler_Authorize(t *testing.T) {
	t.Run("Approved", func(t *testing.T) {
		router, spend := newSpendRouter()
		spend.On("Authorize", mock.Anything, "gid://shopify/Customer/77", int64(500), int64(5999)).
			Return(&engine.Authorization{Approved: 500, CurrentBalance: 1200}, nil)

		rr := authorizeRequest(router, AuthorizeSpendRequest{
			CustomerRef:    "gid://shopify/Customer/77",
			Amount:         500,
			CartTotalCents: 5999,
		})

		assert.Equal(t, http.StatusOK, rr.Code)
		var response Response
		err := json.Unmarshal(rr.Body.Bytes(), &response)
		assert.NoError(t, err)
		data := response.Data.(map[string]interface{})
		assert.Equal(t, float64(500), data["approved"])
		assert.Equal(t, float64(1200), data["current_balance"])
		spend.AssertExpectations(t)
	})

	t.Run("Insufficient balance", func(t *testing.T) {
		router, spend := newSpendRouter()
		spend.On("Authorize", mock.Anything, "gid://shopify/Customer/77", int64(5000), int64(0)).
			Return(nil, customer.ErrInsufficientBalance)

		rr := authorizeRequest(router, AuthorizeSpendRequest{
			CustomerRef: "gid://shopify/Customer/77",
			Amount:      5000,
		})

		assert.Equal(t, http.StatusConflict, rr.Code)
		var response Response
		err := json.Unmarshal(rr.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "INSUFFICIENT_BALANCE", response.Error.Code)
	})

	t.Run("Unknown customer", func(t *testing.T) {
		router, spend := newSpendRouter()
		spend.On("Authorize", mock.Anything, "gid://shopify/Customer/404", int64(500), int64(0)).
			Return(nil, customer.ErrCustomerNotFound{})

		rr := authorizeRequest(router, AuthorizeSpendRequest{
			CustomerRef: "gid://shopify/Customer/404",
			Amount:      500,
		})

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Rejects non-positive amount at binding", func(t *testing.T) {
		router, spend := newSpendRouter()

		rr := authorizeRequest(router, AuthorizeSpendRequest{
			CustomerRef: "gid://shopify/Customer/77",
			Amount:      0,
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		spend.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Engine failure", func(t *testing.T) {
		router, spend := newSpendRouter()
		spend.On("Authorize", mock.Anything, "gid://shopify/Customer/77", int64(500), int64(0)).
			Return(nil, assert.AnError)

		rr := authorizeRequest(router, AuthorizeSpendRequest{
			CustomerRef: "gid://shopify/Customer/77",
			Amount:      500,
		})

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
