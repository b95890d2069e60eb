package scoring

import "cageside/internal/domain"

var errNothingToFinalize = domain.Invalid("bout_id", "no scored rounds to finalize")
