package dict

// DefaultTokens are the object keys of the player statistics record. The
// position of each token fixes its code in stored payloads, so new keys are
// only ever appended.
var DefaultTokens = []string{
	"kills",
	"deaths",
	"assists",
	"headshots",
	"suicides",
	"teamKills",
	"longestKillStreak",
	"currentKillStreak",
	"damageDealt",
	"damageTaken",
	"weaponKills",
	"playtimeSeconds",
	"sessions",
	"firstSeen",
	"lastSeen",
	"hourlyActivity",
	"balance",
	"moneyEarned",
	"moneySpent",
	"votesCast",
	"voteKicksStarted",
	"voteKicksReceived",
	"heatmap",
	"playerId",
	"name",
	"updatedAt",
}
