package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CartStatus enumerates the lifecycle states of a shopping cart.
type CartStatus string

const (
	// CartStatusCreated marks a freshly created cart with no items yet.
	CartStatusCreated CartStatus = "CREATED"
	// CartStatusActive marks a cart that has received at least one item.
	CartStatusActive CartStatus = "ACTIVE"
	// CartStatusProcessing marks a cart whose items are being adjusted.
	CartStatusProcessing CartStatus = "PROCESSING"
	// CartStatusEmpty marks a cart whose last item was removed.
	CartStatusEmpty CartStatus = "EMPTY"
	// CartStatusClear marks a cart explicitly emptied by the shopper.
	CartStatusClear CartStatus = "CLEAR"
	// CartStatusCheckout marks a cart currently going through checkout.
	CartStatusCheckout CartStatus = "CHECKOUT"
	// CartStatusFinished marks a cart consumed by a completed checkout.
	CartStatusFinished CartStatus = "FINISHED"
)

// CartItemStatus describes per-line eligibility derived by the pricing engine.
type CartItemStatus string

const (
	// CartItemStatusBlocked indicates the line is missing required options.
	CartItemStatusBlocked CartItemStatus = "BLOCKED"
	// CartItemStatusPending indicates the line has not been validated yet.
	CartItemStatusPending CartItemStatus = "PENDING"
	// CartItemStatusReleased indicates the line satisfies the product's option rules.
	CartItemStatusReleased CartItemStatus = "RELEASED"
)

// OrderStatus enumerates the payment lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusCreated marks an order materialised from a cart, payment not yet started.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusProcessing marks an order whose payment is being initiated.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusAwaitingPayment marks an order waiting for out-of-band confirmation.
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	// OrderStatusPaid marks a successfully settled order. Terminal.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusFailPaid marks an order whose synchronous charge failed. Terminal.
	OrderStatusFailPaid OrderStatus = "FAIL_PAID"
	// OrderStatusRejected marks an order rejected by the payment provider. Terminal.
	OrderStatusRejected OrderStatus = "REJECTED"
	// OrderStatusCancelled marks an order cancelled while still processing. Terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentMethod enumerates the supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodCash settles on delivery, optionally with change for a note.
	PaymentMethodCash PaymentMethod = "CASH"
	// PaymentMethodCard charges a card synchronously through the provider.
	PaymentMethodCard PaymentMethod = "CREDIT_CARD"
	// PaymentMethodPix charges through a scannable QR code confirmed asynchronously.
	PaymentMethodPix PaymentMethod = "PIX"
)

// PaymentStatus mirrors the provider-facing state of the local payment shadow.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the provider has not resolved the charge yet.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusAwaiting indicates the charge waits for the payer to act.
	PaymentStatusAwaiting PaymentStatus = "AWAITING_PAYMENT"
	// PaymentStatusConfirmed indicates the provider approved the charge.
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	// PaymentStatusRejected indicates the provider declined the charge.
	PaymentStatusRejected PaymentStatus = "REJECTED"
	// PaymentStatusCancelled indicates the charge was cancelled before settling.
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Cart is the mutable pre-order basket scoped to one merchant session.
//
// Items are owned by value; deleting the cart deletes its lines. Children
// never point back at the cart, they carry the cart code as a foreign key
// only where persistence requires it.
type Cart struct {
	ID           string
	CartCode     string
	MerchantCode string
	Items        []CartItem
	Total        decimal.Decimal
	DeliveryFee  decimal.Decimal
	Status       CartStatus
	// OrderCode records the code of a cancelled order when the cart is
	// reopened for re-checkout.
	OrderCode string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single product line inside a cart.
type CartItem struct {
	ID          string
	ProductCode string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int64
	TotalPrice  decimal.Decimal
	Status      CartItemStatus
	Observation string
	Options     []CartItemOption
	Extras      []CartItemExtra
}

// CartItemOption is a priced modifier chosen for a line, snapshotted from the
// catalog at the time it was added.
type CartItemOption struct {
	OptionCode string
	Name       string
	Price      decimal.Decimal
	Quantity   int64
}

// CartItemExtra is an additional priced add-on attached to a line, snapshotted
// from the catalog at the time it was added.
type CartItemExtra struct {
	ExtraCode string
	Name      string
	Price     decimal.Decimal
	Quantity  int64
}

// Product is the read-only catalog view this engine consumes.
type Product struct {
	Code                   string
	MerchantCode           string
	Name                   string
	Price                  decimal.Decimal
	MinimumRequiredOptions int64
	Options                []ProductOption
	Stock                  int64
}

// ProductOption describes a modifier the catalog declares for a product.
type ProductOption struct {
	Code            string
	Name            string
	AdditionalPrice decimal.Decimal
}

// Order is the immutable-after-creation record of a finalized cart, tracked
// through payment. Cancellation is a status transition, never a delete.
type Order struct {
	ID           string
	OrderCode    string
	CartCode     string
	MerchantCode string
	UserID       string
	Items        []OrderItem
	Total        decimal.Decimal
	DeliveryFee  decimal.Decimal
	Status       OrderStatus
	Method       PaymentMethod
	// CashChange holds the note the payer intends to hand over for cash
	// orders so the courier can carry change.
	CashChange *decimal.Decimal
	PaymentID  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderItem is a deep-copied snapshot of a cart line at checkout time.
// Catalog changes after checkout never affect it.
type OrderItem struct {
	ProductCode string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int64
	TotalPrice  decimal.Decimal
	Observation string
	Options     []OrderItemOption
}

// OrderItemOption snapshots a chosen modifier at checkout time.
type OrderItemOption struct {
	OptionCode string
	Name       string
	Price      decimal.Decimal
	Quantity   int64
}

// Payment is the local shadow of a provider-side charge. The provider is the
// source of truth for card and PIX; this record links it to the order.
type Payment struct {
	ID                string
	OrderCode         string
	Provider          string
	ProviderPaymentID string
	Method            PaymentMethod
	TransactionAmount decimal.Decimal
	Description       string
	Status            PaymentStatus
	PayerEmail        string
	QRCodeURL         string
	QRCodeBase64      string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// User is the customer identity resolved during checkout. Anonymous users are
// keyed by phone number.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Anonymous bool
	Address   Address
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address captures the delivery destination collected at checkout.
type Address struct {
	Street     string
	Number     string
	District   string
	City       string
	State      string
	PostalCode string
	Complement string
}

// OrderStatusChange is one entry in the order audit trail.
type OrderStatusChange struct {
	ID        string
	OrderCode string
	From      OrderStatus
	To        OrderStatus
	Actor     string
	Reason    string
	CreatedAt time.Time
}

// BestSeller is one row of the best-seller report.
type BestSeller struct {
	ProductCode string
	ProductName string
	Quantity    int64
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
