package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/game"
)

// viewOwner marks the owner's view in a game state response
const viewOwner = "owner"

// Output formats command results as text or JSON
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == FormatJSON {
		o.printJSON(data)
		return
	}
	o.printText(data)
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == FormatJSON {
		o.printJSON(map[string]string{"message": msg})
		return
	}
	fmt.Fprintln(o.w, msg)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
	case TokenResult:
		fmt.Fprintf(o.w, "Principal: %s\n", v.Principal)
		fmt.Fprintf(o.w, "Expires: %s\n", v.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(o.w, "Token: %s\n", v.Token)
	case *game.GameSummary:
		o.printSummary(v)
	case GameList:
		o.printGameList(v)
	case GameState:
		o.printGameState(v)
	case *game.BurnResult:
		fmt.Fprintf(o.w, "Burned case %d: %s\n", v.Index, money(v.ValueCents))
		if v.Offer != nil {
			fmt.Fprintf(o.w, "Banker offers %s\n", money(*v.Offer))
		}
		o.printSummary(v.Game)
	case *game.FinalRevealResult:
		fmt.Fprintf(o.w, "Your case %d held %s\n", v.ChosenIndex, money(v.ChosenValue))
		fmt.Fprintf(o.w, "Case %d held %s\n", v.OtherIndex, money(v.OtherValue))
		if v.Swapped {
			fmt.Fprintln(o.w, "You swapped.")
		}
		fmt.Fprintf(o.w, "You won %s\n", money(v.FinalWonCents))
	case *game.ClaimResult:
		fmt.Fprintf(o.w, "Claimed %s\n", money(v.AmountCents))
		fmt.Fprintf(o.w, "Payout tx: %s\n", v.TxHash)
	case Event:
		o.printEvent(v)
	default:
		o.printJSON(data)
	}
}

func (o *Output) printSummary(g *game.GameSummary) {
	if g == nil {
		return
	}
	fmt.Fprintf(o.w, "Game: %s\n", g.ID)
	fmt.Fprintf(o.w, "Mode: %s\n", g.Mode)
	fmt.Fprintf(o.w, "Status: %s\n", g.Status)
	fmt.Fprintf(o.w, "Entry fee: %s %s\n", money(g.EntryFeeCents), g.Currency)
	if g.ChosenCase != nil {
		fmt.Fprintf(o.w, "Your case: %d\n", *g.ChosenCase)
	}
	if g.BankerOffer != nil {
		fmt.Fprintf(o.w, "Banker offer: %s\n", money(*g.BankerOffer))
	}
	if g.AcceptedDeal {
		fmt.Fprintln(o.w, "Deal accepted")
	}
	if g.FinalWonCents != nil {
		fmt.Fprintf(o.w, "Won: %s\n", money(*g.FinalWonCents))
	}
	if g.PaidOut {
		fmt.Fprintf(o.w, "Paid out: %s\n", g.PayoutTx)
	}
}

func (o *Output) printGameList(l GameList) {
	if len(l.Games) == 0 {
		fmt.Fprintln(o.w, "No games")
		return
	}
	for _, g := range l.Games {
		fmt.Fprintf(o.w, "%s  %-18s %-8s %s\n", g.ID, g.Status, g.Mode, money(g.EntryFeeCents))
	}
}

func (o *Output) printGameState(s GameState) {
	o.printSummary(s.Game)

	if s.View == viewOwner {
		fmt.Fprintln(o.w, "\nCases:")
		for _, c := range s.Cards {
			fmt.Fprintf(o.w, "  [%d] %s\n", c.Index, caseLabel(s.Game, c))
		}
		if len(s.Moves) > 0 {
			fmt.Fprintln(o.w, "\nMoves:")
			for _, m := range s.Moves {
				fmt.Fprintf(o.w, "  %s %s\n", m.CreatedAt.Format("15:04:05"), describeMove(m))
			}
		}
		return
	}

	fmt.Fprintf(o.w, "\nSealed cases: %d\n", s.UnrevealedCount)
	for _, c := range s.RevealedCards {
		fmt.Fprintf(o.w, "  [%d] %s\n", c.Index, money(c.ValueCents))
	}
}

func (o *Output) printEvent(e Event) {
	if e.Move == nil {
		fmt.Fprintf(o.w, "%s %s\n", e.Type, e.GameID)
		return
	}
	fmt.Fprintf(o.w, "[%s] %s\n", e.Move.CreatedAt.Format("15:04:05"), describeMove(*e.Move))
}

func caseLabel(g *game.GameSummary, c game.CardView) string {
	var tags []string
	if g != nil && g.ChosenCase != nil && *g.ChosenCase == c.Index {
		tags = append(tags, "yours")
	}
	if c.Burned {
		tags = append(tags, "burned")
	}

	label := "sealed"
	if c.ValueCents != nil {
		label = money(*c.ValueCents)
	}
	if len(tags) > 0 {
		label += " (" + strings.Join(tags, ", ") + ")"
	}
	return label
}

func describeMove(m model.Move) string {
	actor := "banker"
	if m.Actor != nil {
		actor = shortAddress(m.Actor.String())
	}

	detail := ""
	if idx, ok := m.Payload["index"]; ok {
		detail = fmt.Sprintf(" case %v", idx)
	}
	if v, ok := m.Payload["offer_cents"]; ok {
		detail += " offer " + moneyAny(v)
	}
	if v, ok := m.Payload["value_cents"]; ok {
		detail += " value " + moneyAny(v)
	}
	if v, ok := m.Payload["amount_cents"]; ok {
		detail += " amount " + moneyAny(v)
	}
	return fmt.Sprintf("%s %s%s", actor, m.Action, detail)
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func money(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

// moneyAny formats a cent amount decoded from a JSON payload
func moneyAny(v any) string {
	switch n := v.(type) {
	case float64:
		return "$" + decimal.NewFromFloat(n).Shift(-2).StringFixed(2)
	case int64:
		return money(n)
	case int:
		return money(int64(n))
	default:
		return fmt.Sprint(v)
	}
}

// HealthResult is the body of the health endpoint
type HealthResult struct {
	Status string `json:"status"`
}

// TokenResult is the output of the token command
type TokenResult struct {
	Principal string    `json:"principal"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GameList is the body of the list endpoint
type GameList struct {
	Games []*game.GameSummary `json:"games"`
}

// GameState holds either an owner or a public view, keyed by View
type GameState struct {
	View string            `json:"view"`
	Game *game.GameSummary `json:"game"`

	Cards []game.CardView `json:"cards,omitempty"`
	Moves []model.Move    `json:"moves,omitempty"`

	RevealedCards   []game.RevealedCard `json:"revealed_cards,omitempty"`
	UnrevealedCount int                 `json:"unrevealed_count,omitempty"`
}

// ActionResult is the body returned by the actions endpoint
type ActionResult struct {
	Action string          `json:"action"`
	Result json.RawMessage `json:"result"`
}
