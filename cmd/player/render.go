package main

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pterm/pterm"

	"crashround/internal/game"
)

type envelope struct {
	Type game.EventType      `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

func render(ev envelope) {
	switch ev.Type {
	case game.EventInitialState:
		var s game.InitialStateMessage
		if decode(ev, &s) {
			line := fmt.Sprintf("phase %s at %.2fx", s.Phase, s.Multiplier)
			if s.Balance != nil {
				line += fmt.Sprintf(", balance %.2f", *s.Balance)
			} else {
				line += ", balance unavailable"
			}
			if s.MyBet != nil {
				line += fmt.Sprintf(", your bet %.2f", s.MyBet.Amount)
			}
			pterm.Info.Println(line)
		}

	case game.EventRoundCountdownStarted, game.EventRoundCountdownTick:
		var seconds int
		if decode(ev, &seconds) {
			pterm.Printfln("%s %ds", pterm.LightYellow("countdown"), seconds)
		}

	case game.EventRoundCountdownEnded:
		pterm.Println(pterm.LightGreen("round started"))

	case game.EventMultiplierUpdate:
		var m float64
		if decode(ev, &m) {
			pterm.Printfln("%s", pterm.Cyan(fmt.Sprintf("%.2fx", m)))
		}

	case game.EventRoundCrashed:
		var msg game.RoundCrashedMessage
		if decode(ev, &msg) {
			pterm.Println(pterm.LightRed(fmt.Sprintf("CRASHED at %.2fx (crash point %.2f)", msg.FinalMultiplier, msg.CrashPoint)))
		}

	case game.EventSettlementResult:
		var res game.SettlementResult
		if decode(ev, &res) {
			renderSettlement(res)
		}

	case game.EventActiveBetCount:
		var n int
		if decode(ev, &n) {
			pterm.Printfln("%d active bets", n)
		}

	case game.EventPlayerCashedOut:
		var msg game.PlayerCashedOutMessage
		if decode(ev, &msg) {
			pterm.Printfln("%s cashed out at %.2fx", msg.Username, msg.CashoutMultiplier)
		}

	case game.EventBalanceUpdate:
		var balance float64
		if decode(ev, &balance) {
			pterm.Info.Printfln("balance %.2f", balance)
		}

	case game.EventBetAccepted:
		var amount float64
		if decode(ev, &amount) {
			pterm.Success.Printfln("bet of %.2f accepted", amount)
		}

	case game.EventCashOutAccepted:
		var m float64
		if decode(ev, &m) {
			pterm.Success.Printfln("cashed out at %.2fx", m)
		}

	case game.EventBetRejected, game.EventCashOutRejected:
		var r game.RejectionMessage
		if decode(ev, &r) {
			pterm.Warning.Printfln("%s: %s", r.Reason, r.Message)
		}

	case game.EventPong:
		pterm.Println("pong")

	default:
		pterm.Debug.Printfln("%s %s", ev.Type, ev.Data)
	}
}

func renderSettlement(res game.SettlementResult) {
	var b strings.Builder
	for _, w := range res.Winners {
		fmt.Fprintf(&b, "%s  %.2f @ %.2fx -> %s\n", w.Username, w.Amount, w.CashoutMultiplier, pterm.LightGreen(fmt.Sprintf("%.2f", w.Payout)))
	}
	for _, l := range res.Losers {
		fmt.Fprintf(&b, "%s  %s\n", l.Username, pterm.LightRed(fmt.Sprintf("-%.2f", l.Amount)))
	}
	fmt.Fprintf(&b, "commission %.2f, payout ratio %.4f", res.Commission, res.PayoutRatio)

	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	pbox.WithTitle(pterm.LightYellow("|SETTLEMENT|")).WithTitleTopCenter().Println(b.String())
}

func decode(ev envelope, v interface{}) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		pterm.Warning.Printfln("bad %s payload: %v", ev.Type, err)
		return false
	}
	return true
}
