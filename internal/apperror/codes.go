package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Venue and market-domain error codes.
const (
	// AuthError
	CodeVenueAuthFailed Code = "VENUE_AUTH_FAILED"
	CodeVenueForbidden  Code = "VENUE_FORBIDDEN"

	// TransientNetworkError
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
	CodeVenueUnreachable         Code = "VENUE_UNREACHABLE"

	// RateLimitError
	CodeVenueRateLimited Code = "VENUE_RATE_LIMITED"

	// DataError
	CodeOrderbookFetchFailed Code = "ORDERBOOK_FETCH_FAILED"
	CodeMalformedPayload     Code = "MALFORMED_PAYLOAD"
	CodeMarketDiscoveryError Code = "MARKET_DISCOVERY_ERROR"

	// InvariantError
	CodeInvariantViolation    Code = "INVARIANT_VIOLATION"
	CodeStaleBook             Code = "STALE_BOOK"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidTradeSize      Code = "INVALID_TRADE_SIZE"

	// OrderError
	CodeOrderRejected     Code = "ORDER_REJECTED"
	CodeOrderCancelFailed Code = "ORDER_CANCEL_FAILED"

	// ShutdownError
	CodeShutdown Code = "SHUTDOWN"

	// Mapping / dependency solver
	CodeMappingLoadFailed Code = "MAPPING_LOAD_FAILED"
	CodeSolverFailed      Code = "SOLVER_FAILED"
	CodeSolverTimeout     Code = "SOLVER_TIMEOUT"

	// Cache errors
	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
