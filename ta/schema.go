package ta

// Canonical source/field schema shared by the parser, typechecker,
// dataset, and engine.

// Source names.
const (
	SourceOHLCV       = "ohlcv"
	SourceTrades      = "trades"
	SourceOrderbook   = "orderbook"
	SourceLiquidation = "liquidation"
)

// SourceDef defines a data source: its name, description, and the
// fields it can expose.
type SourceDef struct {
	Name        string
	Description string
	Fields      map[string]bool
}

// Contains reports whether the source exposes the field.
func (d SourceDef) Contains(field string) bool { return d.Fields[field] }

func fieldSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// SourceDefs is the registry of all known sources.
var SourceDefs = map[string]SourceDef{
	SourceOHLCV: {
		Name:        SourceOHLCV,
		Description: "OHLCV candlestick data",
		Fields: fieldSet(
			"open", "high", "low", "close", "volume",
			"price", // alias for close
			"hlc3", "ohlc4", "hl2", "typical_price", "weighted_close",
			"median_price", "range", "upper_wick", "lower_wick",
		),
	},
	SourceTrades: {
		Name:        SourceTrades,
		Description: "Trade aggregation data",
		Fields: fieldSet(
			"price", "volume", "count", "buy_volume", "sell_volume",
			"large_count", "whale_count", "avg_price", "vwap", "amount",
			"side", "id", "timestamp",
		),
	},
	SourceOrderbook: {
		Name:        SourceOrderbook,
		Description: "Order book snapshot data",
		Fields: fieldSet(
			"best_bid", "best_ask", "spread", "spread_bps", "mid_price",
			"bid_depth", "ask_depth", "imbalance", "pressure",
			"bid", "ask", "bid_size", "ask_size",
		),
	},
	SourceLiquidation: {
		Name:        SourceLiquidation,
		Description: "Liquidation aggregation data",
		Fields: fieldSet(
			"count", "volume", "value", "long_count", "short_count",
			"long_value", "short_value", "large_count", "large_value",
			"price", "amount", "side", "id", "timestamp",
		),
	},
}

// selectFieldAliases are the one-letter shorthands accepted by
// select() and bare identifiers.
var selectFieldAliases = map[string]string{
	"o": "open",
	"h": "high",
	"l": "low",
	"c": "close",
	"v": "volume",
}

// derivedOHLCVFields are computed lazily from the base OHLCV fields.
var derivedOHLCVFields = fieldSet(
	"hlc3", "ohlc4", "hl2", "typical_price", "weighted_close",
	"median_price", "range", "upper_wick", "lower_wick",
)

// defaultSourceFields are bare identifiers that desugar to a field
// selector in expression text.
var defaultSourceFields = fieldSet(
	"open", "high", "low", "close", "volume", "price",
	"amount", "count", "side", "bid", "ask",
	"hlc3", "ohlc4", "hl2", "typical_price", "weighted_close",
	"median_price", "range", "upper_wick", "lower_wick",
	"o", "h", "l", "c", "v",
)

// KnownSource reports whether name is a registered source.
func KnownSource(name string) bool {
	_, ok := SourceDefs[name]
	return ok
}

// KnownBareField reports whether a bare identifier names a selectable
// field.
func KnownBareField(name string) bool { return defaultSourceFields[name] }

// CanonicalField resolves one-letter field aliases.
func CanonicalField(field string) string {
	if full, ok := selectFieldAliases[field]; ok {
		return full
	}
	return field
}

// ValidSourceField reports whether field belongs to source's schema.
// An empty field is treated as valid (aggregations supply it later).
func ValidSourceField(source, field string) bool {
	if field == "" {
		return true
	}
	def, ok := SourceDefs[source]
	if !ok {
		return false
	}
	return def.Contains(CanonicalField(field))
}

// DerivedField reports whether an OHLCV field is computed rather than
// stored.
func DerivedField(field string) bool { return derivedOHLCVFields[field] }
