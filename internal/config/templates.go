package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Sigma Trader Configuration

[market]
# Underlying index: NIFTY, BANKNIFTY, FINNIFTY, MIDCPNIFTY
symbol = "NIFTY"
# Strike spacing in index points
tick = 50.0
# Strikes generated each side of ATM when a chain is synthesized
steps = 20
# Annual risk-free rate used for option pricing
risk_free_rate = 0.07
# Weekly expiry day
expiry_weekday = "Thursday"
# Iron Fly wing distance from ATM
wing_width = 300.0

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Product type for option legs
product = "NRML"
# Order type: MARKET or LIMIT
order_type = "MARKET"
# Lots per leg
lots = 1
# Kite quote requests per second
requests_per_second = 3.0

[pipeline]
# Fallback when the strategy cannot be determined
default_strategy = "Short Strangle"
default_sigma = 1.0
min_sigma = 0.5
max_sigma = 3.0
# Risk manager rejects short premium below this volatility index
min_vol_index = 11.0
# Attempts for live spot and volatility fetches
retry_attempts = 3
# Manual strategy: "Auto", "Short Strangle", "Short Straddle", "Iron Fly"
override = "Auto"

[storage]
# data_dir defaults to this directory
knowledge_db = "knowledge.db"
journal_db = "runs.db"
# JSON array of {topic, content, source} loaded into an empty knowledge store
seed_file = ""

[logging]
# debug, info, warn, error, disabled
level = "info"
console = true
file = ""
`

const credentialsTemplate = `# Sigma Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
api_secret = ""
access_token = ""

[openai]
api_key = ""

[groq]
api_key = ""
`

const agentsTemplate = `# Sigma Trader Agent Configuration

# Route used when a requested provider is missing or failing
default_provider = "openai"
# Temperature for LLM responses (0.0 - 1.0)
temperature = 0.7
openai_model = "gpt-4-turbo"
groq_model = "llama-3.3-70b-versatile"
groq_base_url = "https://api.groq.com/openai/v1"

# Consecutive failures before a provider is skipped, and for how long
breaker_failures = 3
breaker_timeout = "60s"

# Preferred provider per node; unset nodes use default_provider
[providers]
researcher = "groq"
risk_manager = "groq"

[vocabulary]
approve = ["approve", "approved"]
reject = ["reject", "rejected"]
sigma_pattern = '(?i)sigma[:\s]*(\d+\.?\d*)'

# Checked in order; the first phrase found in a response wins
[[vocabulary.strategies]]
match = "iron fly"
strategy = "Iron Fly"

[[vocabulary.strategies]]
match = "short straddle"
strategy = "Short Straddle"

[[vocabulary.strategies]]
match = "short strangle"
strategy = "Short Strangle"

[[vocabulary.strategies]]
match = "straddle"
strategy = "Short Straddle"

[[vocabulary.strategies]]
match = "strangle"
strategy = "Short Strangle"
`

func writeTemplate(configDir, name, template string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(template), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
