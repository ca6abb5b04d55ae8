package reader

// tokenQueue is the FIFO of identifiers waiting to be handed out by Read.
type tokenQueue struct {
	items [][]byte
}

func (q *tokenQueue) push(tok []byte) {
	q.items = append(q.items, tok)
}

func (q *tokenQueue) pop() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head, true
}

func (q *tokenQueue) len() int {
	return len(q.items)
}
