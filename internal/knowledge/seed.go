package knowledge

// DefaultRules is the built-in rule set loaded into an empty store.
func DefaultRules() []Snippet {
	return []Snippet{
		{Topic: "Short Strangle management", Source: "builtin",
			Content: "Short Strangle: sell an OTM call and an OTM put at roughly one expected-move away from spot. Enter when IV is above 12% and no major event falls before expiry."},
		{Topic: "Short Strangle management", Source: "builtin",
			Content: "Short Strangle adjustment: if spot moves more than 2% toward a short strike, roll the untested side closer or exit the tested side. Keep total loss under 2x credit received."},
		{Topic: "Short Straddle management", Source: "builtin",
			Content: "Short Straddle: sell the ATM call and ATM put. Suits low realised volatility and range-bound sessions close to expiry; collect maximum theta premium."},
		{Topic: "Short Straddle management", Source: "builtin",
			Content: "Short Straddle risk: exit if combined premium rises 30% above entry or spot breaks the day range. Avoid on event days."},
		{Topic: "Iron Fly management", Source: "builtin",
			Content: "Iron Fly: short ATM straddle with long wings about 300 points away. Defined risk; prefer when volatility is elevated but direction is unclear."},
		{Topic: "risk rules", Source: "builtin",
			Content: "Do not sell options when India VIX is below 11%; premium does not compensate for gap risk."},
		{Topic: "market news", Source: "builtin",
			Content: "No live market news ingested. Treat sentiment as Neutral unless research reports otherwise."},
	}
}
