package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Auth
	CodeVenueAuthFailed: "Venue authentication failed",
	CodeVenueForbidden:  "Venue rejected request as forbidden",

	// Transient network
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeVenueUnreachable:         "Venue endpoint unreachable",

	// Rate limit
	CodeVenueRateLimited: "Venue rate limit exceeded",

	// Data
	CodeOrderbookFetchFailed: "Failed to fetch orderbook",
	CodeMalformedPayload:     "Malformed venue payload",
	CodeMarketDiscoveryError: "Market discovery request failed",

	// Invariant
	CodeInvariantViolation:    "Orderbook invariant violated",
	CodeStaleBook:             "Orderbook snapshot is stale",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInvalidTradeSize:      "Invalid trade size",

	// Order
	CodeOrderRejected:     "Order rejected by venue",
	CodeOrderCancelFailed: "Order cancellation failed",

	// Shutdown
	CodeShutdown: "Shutting down",

	// Mapping / dependency solver
	CodeMappingLoadFailed: "Failed to load cross-venue mapping file",
	CodeSolverFailed:      "Dependency solver process failed",
	CodeSolverTimeout:     "Dependency solver timed out",

	// Cache
	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
