package stattracker

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/FiskLee/stattracker/internal/heatmap"
)

// HourBuckets is the length of PlayerStats.HourlyActivity.
const HourBuckets = 24

// Heatmap is a saturating position grid stored on PlayerStats in RLE form.
type Heatmap = heatmap.Grid

// NewHeatmap returns an empty w x h grid.
func NewHeatmap(w, h int) *Heatmap { return heatmap.New(w, h) }

// PlayerStats is the per-player record. Its JSON keys are the dictionary
// tokens, so renaming a tag changes the stored format.
type PlayerStats struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`

	Kills             int64            `json:"kills"`
	Deaths            int64            `json:"deaths"`
	Assists           int64            `json:"assists"`
	Headshots         int64            `json:"headshots"`
	Suicides          int64            `json:"suicides"`
	TeamKills         int64            `json:"teamKills"`
	LongestKillStreak int64            `json:"longestKillStreak"`
	CurrentKillStreak int64            `json:"currentKillStreak"`
	DamageDealt       float64          `json:"damageDealt"`
	DamageTaken       float64          `json:"damageTaken"`
	WeaponKills       map[string]int64 `json:"weaponKills,omitempty"`

	PlaytimeSeconds int64     `json:"playtimeSeconds"`
	Sessions        int64     `json:"sessions"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
	// HourlyActivity holds seconds played per UTC hour of day.
	HourlyActivity []int64 `json:"hourlyActivity,omitempty"`

	Balance     int64 `json:"balance"`
	MoneyEarned int64 `json:"moneyEarned"`
	MoneySpent  int64 `json:"moneySpent"`

	VotesCast         int64 `json:"votesCast"`
	VoteKicksStarted  int64 `json:"voteKicksStarted"`
	VoteKicksReceived int64 `json:"voteKicksReceived"`

	Heatmap string `json:"heatmap,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// NewPlayerStats returns a zeroed record for id.
func NewPlayerStats(id, name string) *PlayerStats {
	return &PlayerStats{PlayerID: id, Name: name}
}

// RecordKill counts a kill with weapon and extends the current streak.
func (p *PlayerStats) RecordKill(weapon string, headshot bool) {
	p.Kills++
	if headshot {
		p.Headshots++
	}
	p.CurrentKillStreak++
	if p.CurrentKillStreak > p.LongestKillStreak {
		p.LongestKillStreak = p.CurrentKillStreak
	}
	weapon = strings.TrimSpace(weapon)
	if weapon == "" {
		return
	}
	if p.WeaponKills == nil {
		p.WeaponKills = make(map[string]int64)
	}
	p.WeaponKills[weapon]++
}

// RecordDeath counts a death and ends the current streak.
func (p *PlayerStats) RecordDeath() {
	p.Deaths++
	p.CurrentKillStreak = 0
}

// RecordSuicide counts a self-inflicted death.
func (p *PlayerStats) RecordSuicide() {
	p.Suicides++
	p.RecordDeath()
}

// RecordTeamKill counts a friendly kill. It does not add to Kills.
func (p *PlayerStats) RecordTeamKill() { p.TeamKills++ }

// RecordAssist counts an assist.
func (p *PlayerStats) RecordAssist() { p.Assists++ }

// RecordDamage adds dealt and taken damage. Negative amounts are ignored.
func (p *PlayerStats) RecordDamage(dealt, taken float64) {
	if dealt > 0 {
		p.DamageDealt += dealt
	}
	if taken > 0 {
		p.DamageTaken += taken
	}
}

// StartSession counts a new session beginning at at.
func (p *PlayerStats) StartSession(at time.Time) {
	p.Sessions++
	p.touch(at)
}

// AddPlaytime adds d to the total and to the hour bucket of at.
func (p *PlayerStats) AddPlaytime(d time.Duration, at time.Time) {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return
	}
	p.PlaytimeSeconds += secs
	if len(p.HourlyActivity) != HourBuckets {
		hours := make([]int64, HourBuckets)
		copy(hours, p.HourlyActivity)
		p.HourlyActivity = hours
	}
	p.HourlyActivity[at.UTC().Hour()] += secs
	p.touch(at)
}

func (p *PlayerStats) touch(at time.Time) {
	at = at.UTC()
	if p.FirstSeen.IsZero() || at.Before(p.FirstSeen) {
		p.FirstSeen = at
	}
	if at.After(p.LastSeen) {
		p.LastSeen = at
	}
}

// Earn credits amount to the balance.
func (p *PlayerStats) Earn(amount int64) {
	if amount <= 0 {
		return
	}
	p.Balance += amount
	p.MoneyEarned += amount
}

// Spend debits amount, failing with ErrInsufficientFunds when the balance
// is too low.
func (p *PlayerStats) Spend(amount int64) error {
	if amount <= 0 {
		return nil
	}
	if p.Balance < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, p.Balance, amount)
	}
	p.Balance -= amount
	p.MoneySpent += amount
	return nil
}

// RecordVote counts a cast vote.
func (p *PlayerStats) RecordVote() { p.VotesCast++ }

// RecordVoteKick counts a vote-kick this player started (started=true) or
// was the target of.
func (p *PlayerStats) RecordVoteKick(started bool) {
	if started {
		p.VoteKicksStarted++
		return
	}
	p.VoteKicksReceived++
}

// KDRatio returns kills per death; with no deaths it returns the kill count.
func (p *PlayerStats) KDRatio() float64 {
	if p.Deaths == 0 {
		return float64(p.Kills)
	}
	return float64(p.Kills) / float64(p.Deaths)
}

// HeadshotRate returns the share of kills that were headshots.
func (p *PlayerStats) HeadshotRate() float64 {
	if p.Kills == 0 {
		return 0
	}
	return float64(p.Headshots) / float64(p.Kills)
}

// DecodeHeatmap returns the stored heatmap as a w x h grid. A record with
// no heatmap yields an empty grid.
func (p *PlayerStats) DecodeHeatmap(w, h int) (*Heatmap, error) {
	return heatmap.Decode(w, h, p.Heatmap)
}

// SetHeatmap stores g in RLE form.
func (p *PlayerStats) SetHeatmap(g *Heatmap) {
	if g == nil {
		p.Heatmap = ""
		return
	}
	p.Heatmap = g.Encode()
}

// Clone returns a deep copy.
func (p *PlayerStats) Clone() *PlayerStats {
	if p == nil {
		return nil
	}
	c := *p
	c.WeaponKills = maps.Clone(p.WeaponKills)
	if p.HourlyActivity != nil {
		c.HourlyActivity = append([]int64(nil), p.HourlyActivity...)
	}
	return &c
}
