package core

// Catalog is the ordered set of accounts a report has rows for.
type Catalog struct {
	accounts []AccountID
	index    map[AccountID]int
}

// NewCatalog keeps the first occurrence of each non-empty label, in order,
// dropping header cells and every excluded account.
func NewCatalog(labels []string, excluded []AccountID) Catalog {
	skip := make(map[AccountID]struct{}, len(excluded))
	for _, a := range excluded {
		skip[a] = struct{}{}
	}
	c := Catalog{index: make(map[AccountID]int)}
	for _, l := range labels {
		a := NormalizeAccount(l)
		if a == "" || a == AccountHeader {
			continue
		}
		if _, ok := skip[a]; ok {
			continue
		}
		if _, dup := c.index[a]; dup {
			continue
		}
		c.index[a] = len(c.accounts)
		c.accounts = append(c.accounts, a)
	}
	return c
}

// AccountHeader is the header label of the account column.
const AccountHeader AccountID = "*Account"

// Contains reports whether a is a catalog account.
func (c Catalog) Contains(a AccountID) bool {
	_, ok := c.index[a]
	return ok
}

// Index returns the row position of a, or -1.
func (c Catalog) Index(a AccountID) int {
	if i, ok := c.index[a]; ok {
		return i
	}
	return -1
}

// Accounts returns the accounts in catalog order.
func (c Catalog) Accounts() []AccountID {
	out := make([]AccountID, len(c.accounts))
	copy(out, c.accounts)
	return out
}

func (c Catalog) Len() int { return len(c.accounts) }

// Labels returns the catalog as plain strings.
func (c Catalog) Labels() []string {
	out := make([]string, len(c.accounts))
	for i, a := range c.accounts {
		out[i] = string(a)
	}
	return out
}
