package enums

// PaymentMethod describes how a buyer intends to settle an order. Neither
// method captures funds at checkout.
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

var paymentMethods = newDomain("payment method", PaymentMethodCOD, PaymentMethodBankTransfer)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// ParsePaymentMethod is an exact match; callers normalize user input first.
func ParsePaymentMethod(value string) (PaymentMethod, error) { return paymentMethods.parse(value) }

func PaymentMethods() []PaymentMethod { return paymentMethods.all() }
