package rates

import "errors"

var (
	// ErrUnsupportedCurrency reports a currency the rate source does not quote.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrSourceUnavailable reports that the rate source could not produce a
	// usable day table, either because it was unreachable or because its
	// response was unusable.
	ErrSourceUnavailable = errors.New("rate source unavailable")
)
