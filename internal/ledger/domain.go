package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Class categorises a raw material and fixes its stock representation.
type Class string

const (
	ClassA Class = "A"
	ClassB Class = "B"
	ClassC Class = "C"
)

// Valid reports whether the class is one of A, B or C.
func (c Class) Valid() bool {
	return c == ClassA || c == ClassB || c == ClassC
}

// Bucket names a processing stage of a raw material's stock.
type Bucket string

const (
	BucketUnprocessed Bucket = "unprocessed"
	BucketHobbing     Bucket = "hobbing"
	BucketHeatTreated Bucket = "heat_treated"
	BucketProcessed   Bucket = "processed"
)

// classBBuckets lists the stages class B material moves through.
var classBBuckets = []Bucket{BucketUnprocessed, BucketHobbing, BucketHeatTreated, BucketProcessed}

// Buckets returns the bucket names defined for the class. Classes A and
// C carry a single processed-stock scalar.
func (c Class) Buckets() []Bucket {
	if c == ClassB {
		return classBBuckets
	}
	return []Bucket{BucketProcessed}
}

// ReceiptBucket is where purchase receipts land: class B material
// arrives unprocessed, everything else goes straight to processed.
func ReceiptBucket(c Class) Bucket {
	if c == ClassB {
		return BucketUnprocessed
	}
	return BucketProcessed
}

// ConsumptionBucket is where production debits stock from.
func ConsumptionBucket(c Class) Bucket {
	return BucketProcessed
}

var (
	// ErrNotFound indicates the material does not exist.
	ErrNotFound = errors.New("ledger: raw material not found")
	// ErrInvalidBucket indicates the bucket is not defined for the material's class.
	ErrInvalidBucket = errors.New("ledger: bucket not defined for material class")
	// ErrInsufficientStock indicates a debit exceeds the bucket balance.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrInvalidAmount indicates a non-positive mutation amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrValidation indicates invalid material input.
	ErrValidation = errors.New("ledger: invalid input")
)

// Quantity is the stock representation of a raw material: a plain
// scalar for classes A and C, or a named bucket map for class B. The
// scalar form behaves as a single implicit "processed" bucket.
type Quantity struct {
	scalar  bool
	value   float64
	buckets map[Bucket]float64
}

// ScalarQuantity builds the scalar representation.
func ScalarQuantity(value float64) Quantity {
	return Quantity{scalar: true, value: value}
}

// BucketQuantity builds the bucket-map representation.
func BucketQuantity(buckets map[Bucket]float64) Quantity {
	copied := make(map[Bucket]float64, len(buckets))
	for k, v := range buckets {
		copied[k] = v
	}
	return Quantity{buckets: copied}
}

// ZeroQuantity builds an empty representation appropriate for the class.
func ZeroQuantity(c Class) Quantity {
	if c == ClassB {
		buckets := make(map[Bucket]float64, len(classBBuckets))
		for _, b := range classBBuckets {
			buckets[b] = 0
		}
		return Quantity{buckets: buckets}
	}
	return Quantity{scalar: true}
}

// IsScalar reports whether the quantity is the single-scalar form.
func (q Quantity) IsScalar() bool {
	return q.scalar
}

// normalise maps the empty bucket name onto the implicit processed
// bucket so scalar materials can be addressed without naming one.
func normalise(b Bucket) Bucket {
	if b == "" {
		return BucketProcessed
	}
	return b
}

// Get returns the balance of the named bucket.
func (q Quantity) Get(b Bucket) (float64, error) {
	b = normalise(b)
	if q.scalar {
		if b != BucketProcessed {
			return 0, fmt.Errorf("%w: %q", ErrInvalidBucket, b)
		}
		return q.value, nil
	}
	v, ok := q.buckets[b]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBucket, b)
	}
	return v, nil
}

// Total sums all buckets (or returns the scalar).
func (q Quantity) Total() float64 {
	if q.scalar {
		return q.value
	}
	var total float64
	for _, v := range q.buckets {
		total += v
	}
	return total
}

// Buckets returns a copy of the bucket map; scalar quantities surface
// their value under the implicit processed bucket.
func (q Quantity) Buckets() map[Bucket]float64 {
	if q.scalar {
		return map[Bucket]float64{BucketProcessed: q.value}
	}
	copied := make(map[Bucket]float64, len(q.buckets))
	for k, v := range q.buckets {
		copied[k] = v
	}
	return copied
}

// Add increases the named bucket.
func (q *Quantity) Add(b Bucket, amount float64) error {
	b = normalise(b)
	if q.scalar {
		if b != BucketProcessed {
			return fmt.Errorf("%w: %q", ErrInvalidBucket, b)
		}
		q.value += amount
		return nil
	}
	if _, ok := q.buckets[b]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, b)
	}
	q.buckets[b] += amount
	return nil
}

// Sub decreases the named bucket, refusing to go negative.
func (q *Quantity) Sub(b Bucket, amount float64) error {
	b = normalise(b)
	current, err := q.Get(b)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%w: bucket %q holds %v, need %v", ErrInsufficientStock, b, current, amount)
	}
	if q.scalar {
		q.value -= amount
		return nil
	}
	q.buckets[b] -= amount
	return nil
}

// Move transfers amount between buckets as one step. The sum of all
// buckets is unchanged.
func (q *Quantity) Move(from, to Bucket, amount float64) error {
	from, to = normalise(from), normalise(to)
	if _, err := q.Get(to); err != nil {
		return err
	}
	if err := q.Sub(from, amount); err != nil {
		return err
	}
	return q.Add(to, amount)
}

// MarshalJSON stores the scalar form as a bare number and the bucket
// form as an object, matching the persisted document shape.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.scalar {
		return json.Marshal(q.value)
	}
	return json.Marshal(q.buckets)
}

// UnmarshalJSON accepts either representation.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var value float64
	if err := json.Unmarshal(data, &value); err == nil {
		*q = Quantity{scalar: true, value: value}
		return nil
	}
	var buckets map[Bucket]float64
	if err := json.Unmarshal(data, &buckets); err != nil {
		return fmt.Errorf("ledger: decode quantity: %w", err)
	}
	*q = Quantity{buckets: buckets}
	return nil
}

// Material is a raw material record with its stock representation.
type Material struct {
	ID          int64
	Class       Class
	Name        string
	Type        string
	MinQuantity float64
	Quantity    Quantity
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LowStock reports whether total stock has fallen to or below the
// minimum-quantity threshold.
func (m Material) LowStock() bool {
	return m.Quantity.Total() <= m.MinQuantity
}
