package orchestrator

import (
	"fmt"
	"strings"

	"github.com/auravox/core/pkg/types"
)

// purchaseFlowParagraphs maps each PurchaseFlowState status to the
// system-prompt paragraph appended so the model is aware of where the
// client's purchase funnel currently stands (§4.7 step 3b). States that
// need no annotation (idle) produce no paragraph.
var purchaseFlowParagraphs = map[types.PurchaseStatus]string{
	types.PurchaseProductsDisplayed:  "The user is currently viewing a list of trending products you showed them.",
	types.PurchaseProductSelected:    "The user has selected a product and may want to proceed to purchase.",
	types.PurchaseWalletConnecting:   "The user's crypto wallet is in the process of connecting.",
	types.PurchaseWalletConnected:    "The user's wallet is connected and ready for a purchase.",
	types.PurchaseWalletDisconnected: "The user's wallet just disconnected; a purchase in progress may be interrupted.",
	types.PurchaseCryptoInitiated:    "A crypto payment has been initiated for the user's selected product.",
	types.PurchaseTransactionPending: "The user's transaction is pending confirmation on-chain.",
	types.PurchaseTransactionConfirm: "The user's transaction is confirming on-chain.",
	types.PurchaseExecuting:          "The purchase is currently executing.",
	types.PurchaseCompleted:          "The user's purchase just completed successfully. Congratulate them warmly.",
	types.PurchaseFailed:             "The user's purchase attempt failed. Be reassuring and offer to help them try again.",
	types.PurchaseInsufficientFunds:  "The user's wallet has insufficient funds for this purchase.",
	types.PurchasePriceExpired:       "The quoted price for the user's selection has expired; a fresh quote is needed.",
	types.PurchaseTransactionFailed:  "The user's on-chain transaction failed.",
}

// stylistDirective instructs the model to invoke generate_style_suggestion
// on any visual-change intent, including short confirmations, and explains
// when to use a reference outfit vs. free generation (§4.7 step 3c).
const stylistDirective = `You can change the user's visual appearance by calling the generate_style_suggestion tool. Call it whenever the user expresses any intent to change their look, outfit, or style — including short confirmations like "now?" or "go ahead" after you've already proposed a change. Do not describe a style change in words without also calling the tool.`

// assembleSystemPrompt implements §4.7 step 3.
func assembleSystemPrompt(p *types.Persona, purchase types.PurchaseFlowState) string {
	var b strings.Builder
	b.WriteString(p.SystemPrompt)

	if paragraph, ok := purchaseFlowParagraphs[purchase.Status]; ok {
		b.WriteString("\n\n")
		b.WriteString(paragraph)
	}

	if p.Category == types.CategoryStylist {
		b.WriteString("\n\n")
		b.WriteString(stylistDirective)
		if len(p.ReferenceOutfits) > 0 {
			b.WriteString("\n\n")
			b.WriteString(referenceOutfitBlock(p.ReferenceOutfits))
		}
	}

	return b.String()
}

// referenceOutfitBlock lists the persona's reference outfits and the rule
// for choosing them over free generation (§4.7 step 3c.ii).
func referenceOutfitBlock(outfits []types.ReferenceOutfit) string {
	var b strings.Builder
	b.WriteString("You have these reference outfits available to try on the user instead of freely generating a new look:\n")
	for i, o := range outfits {
		b.WriteString(fmt.Sprintf("%d. %s", i, o.Name))
		if o.Brand != "" {
			b.WriteString(fmt.Sprintf(" (%s)", o.Brand))
		}
		b.WriteString("\n")
	}
	b.WriteString("Use use_reference_outfit=true with the matching reference_outfit_index when the user names or clearly implies one of these outfits or brands. Otherwise use free generation.")
	return b.String()
}
