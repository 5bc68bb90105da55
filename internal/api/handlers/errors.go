package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindAuthorization:
		return http.StatusForbidden
	case services.KindState:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, component string, err error) {
	status := StatusFor(err)
	code := services.CodeOf(err)
	if errors.Is(err, errBadRequest) {
		code = "bad_request"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log := logger.WithComponent(component)
		log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Request failed")
		if services.KindOf(err) != services.KindEconomicInvariant {
			message = "internal error"
		}
	}
	c.JSON(status, apimodels.ErrorResponse{Error: message, Code: code})
}

func workerIDParam(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid worker id %q", c.Param("id"))
	}
	return id, nil
}

func decodeHex(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	return hexutil.Decode(raw)
}

func parseHash(raw string) (common.Hash, error) {
	b, err := decodeHex(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, badRequest("invalid hash %q", raw)
	}
	return common.BytesToHash(b), nil
}
