package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/openclaw/walletlink/internal/model"
)

// Callback data sent by the inline keyboards.
const (
	cbCheckSubscription = "check_subscription"
	cbStartConnect      = "start_connect"
	cbManualInput       = "manual_wallet_input"
	cbCancelManual      = "cancel_wallet_input"
	cbReferralProgram   = "referral_program"
	cbConnectPrefix     = "connect:"
)

const (
	textSubscribe = "Join our channel to get news about the project and the drop.\n\n" +
		"Subscribe and press the button below to continue."
	textNotSubscribed   = "Please subscribe to %s to continue."
	textIntro           = "Welcome aboard!\n\nYour balance: %d"
	textIntroWallet     = "\nWallet: <code>%s</code>"
	textChooseWallet    = "Choose a wallet to connect:"
	textManualPrompt    = "Send your wallet address, or press Cancel."
	textManualSaved     = "Your wallet <code>%s</code> is saved."
	textManualInvalid   = "That does not look like a TON address. Try again or press Cancel."
	textScanQR          = "Scan this QR code to connect your wallet, or open <a href=\"%s\">this link</a>."
	textConnected       = "Wallet <code>%s</code> connected."
	textTimedOut        = "Time to connect the wallet is up. Start again from the menu."
	textFailed          = "Could not connect the wallet. Please try again."
	textUnknownWallet   = "Wallet %s is not available. Choose another one."
	textUnavailable     = "The wallet service is unavailable right now. Please try later."
	textTooManyAttempts = "Too many connection attempts. Try again in %d seconds."
	textTryLater        = "Something went wrong. Please try later."
	textUseStart        = "Send /start to open the menu."
	textReferral        = "Invite friends with your personal link. Every new member who joins through it credits your balance.\n\n" +
		"Your referral link: <code>%s</code>\n\nInvited: %d"
)

func channelURL(channel string) string {
	return "https://t.me/" + strings.TrimPrefix(channel, "@")
}

func subscribeKeyboard(channel string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Subscribe", channelURL(channel))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Check subscription", cbCheckSubscription)),
	)
}

func introText(p *model.Principal) string {
	text := fmt.Sprintf(textIntro, p.Balance)
	if p.HasWallet() {
		text += fmt.Sprintf(textIntroWallet, html.EscapeString(p.WalletAddress))
	}
	return text
}

func introKeyboard(p *model.Principal) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Referral program", cbReferralProgram)),
	}
	if !p.HasWallet() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Connect wallet", cbStartConnect),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func walletKeyboard(wallets []model.WalletDescriptor) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(wallets)+1)
	for _, w := range wallets {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(w.Name, cbConnectPrefix+w.Name),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Enter address manually", cbManualInput),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Cancel", cbCancelManual)),
	)
}

func outcomeText(outcome model.Outcome) string {
	switch outcome.Kind {
	case model.OutcomeConnected:
		return fmt.Sprintf(textConnected, html.EscapeString(outcome.Address))
	case model.OutcomeTimedOut:
		return textTimedOut
	default:
		return textFailed
	}
}
