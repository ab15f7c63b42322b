// Package index implements the order-4 B+Tree used to index a single
// table column: each leaf key maps to the list of byte offsets in the
// table's data file where that key's value occurs, supporting duplicates.
package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/RecDB/recdb/internal/schema"
)

// order is the maximum number of keys a node may hold before it must
// split. Kept small and fixed, matching the tree this package is ported
// from.
const order = 4

type node struct {
	keys     []string
	values   [][]uint64
	children []*node
	isLeaf   bool
	next     *node
}

func newNode(leaf bool) *node {
	return &node{isLeaf: leaf}
}

// Tree is a single-column B+Tree index plus the declared type of the
// column it indexes, which governs how keys compare.
type Tree struct {
	root    *node
	colType schema.DataType
}

// New creates an empty index over a column of the given type.
func New(colType schema.DataType) *Tree {
	return &Tree{root: newNode(true), colType: colType}
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

// compareKeys orders two trimmed keys. INT-typed columns compare
// numerically when both sides parse as integers; anything else (including
// a parse failure on an INT column) falls back to lexicographic byte
// comparison.
func (t *Tree) compareKeys(a, b string) int {
	if t.colType == schema.TypeInt {
		ia, errA := strconv.Atoi(a)
		ib, errB := strconv.Atoi(b)
		if errA == nil && errB == nil {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a, b)
}

// Search returns every offset recorded for key, or nil if it is absent.
func (t *Tree) Search(key string) []uint64 {
	key = trim(key)
	n := t.root
	for n != nil {
		i := 0
		for i < len(n.keys) && t.compareKeys(key, n.keys[i]) > 0 {
			i++
		}
		if n.isLeaf {
			if i < len(n.keys) && n.keys[i] == key {
				return n.values[i]
			}
			return nil
		}
		// An internal-node match is only a routing separator, not a data
		// slot (values[i] is always nil here, see splitChild) — the real
		// entry lives in the leaf reachable down children[i+1], the same
		// side insertNonFull descends into for an equal key.
		if i < len(n.keys) && n.keys[i] == key {
			i++
		}
		if i >= len(n.children) {
			return nil
		}
		n = n.children[i]
	}
	return nil
}

// Insert records offset under key, appending to the existing offset list
// if key is already present (duplicate-key support).
func (t *Tree) Insert(key string, offset uint64) {
	key = trim(key)
	if t.root == nil {
		t.root = newNode(true)
	}
	if len(t.root.keys) == order {
		newRoot := newNode(false)
		newRoot.children = append(newRoot.children, t.root)
		t.splitChild(newRoot, 0, t.root)
		t.root = newRoot
	}
	t.insertNonFull(t.root, key, offset)
}

func (t *Tree) insertNonFull(n *node, key string, offset uint64) {
	if n.isLeaf {
		for j := range n.keys {
			if n.keys[j] == key {
				n.values[j] = append(n.values[j], offset)
				return
			}
		}
		n.keys = append(n.keys, "")
		n.values = append(n.values, nil)
		i := len(n.keys) - 2
		for i >= 0 && t.compareKeys(key, n.keys[i]) < 0 {
			n.keys[i+1] = n.keys[i]
			n.values[i+1] = n.values[i]
			i--
		}
		n.keys[i+1] = key
		n.values[i+1] = []uint64{offset}
		return
	}

	i := len(n.keys) - 1
	for i >= 0 && t.compareKeys(key, n.keys[i]) < 0 {
		i--
	}
	i++
	if len(n.children[i].keys) == order {
		t.splitChild(n, i, n.children[i])
		if t.compareKeys(key, n.keys[i]) >= 0 {
			i++
		}
	}
	t.insertNonFull(n.children[i], key, offset)
}

// splitChild splits a full child of parent at position index into two
// siblings, promoting the middle key into parent. The middle key is read
// out of child's key slice BEFORE that slice is truncated: reversing this
// order would promote a key that the subsequent resize has already
// overwritten or shifted.
//
// A leaf split retains the middle key (and its full offset list) in the
// right sibling instead of discarding it: the promoted key in an internal
// node is only a routing separator, so the row offsets it maps to must
// still live in a leaf or they become unsearchable.
func (t *Tree) splitChild(parent *node, index int, child *node) {
	newSibling := newNode(child.isLeaf)
	newSibling.next = child.next
	child.next = newSibling

	mid := (order - 1) / 2
	midKey := child.keys[mid]

	splitAt := mid + 1
	if child.isLeaf {
		splitAt = mid
	}
	newSibling.keys = append([]string{}, child.keys[splitAt:]...)
	newSibling.values = append([][]uint64{}, child.values[splitAt:]...)
	child.keys = child.keys[:mid]
	child.values = child.values[:mid]

	if !child.isLeaf {
		newSibling.children = append([]*node{}, child.children[mid+1:]...)
		child.children = child.children[:mid+1]
	}

	parent.keys = insertStringAt(parent.keys, index, midKey)
	parent.values = insertOffsetsAt(parent.values, index, nil)
	parent.children = insertChildAt(parent.children, index+1, newSibling)
}

func insertStringAt(s []string, i int, v string) []string {
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertOffsetsAt(s [][]uint64, i int, v []uint64) [][]uint64 {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertChildAt(s []*node, i int, v *node) []*node {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Clear discards every entry, leaving the tree with a single empty leaf
// root.
func (t *Tree) Clear() {
	t.root = newNode(true)
}

// AllKeys returns the keys of every node in the tree, in preorder (not
// sorted across subtrees). A separator key promoted from a leaf split is
// listed once for its internal node and again for the leaf that keeps it.
func (t *Tree) AllKeys() []string {
	var keys []string
	collectKeys(t.root, &keys)
	return keys
}

func collectKeys(n *node, out *[]string) {
	if n == nil {
		return
	}
	*out = append(*out, n.keys...)
	if !n.isLeaf {
		for _, c := range n.children {
			collectKeys(c, out)
		}
	}
}

// Save writes a preorder binary dump of the tree: per node, a leaf flag,
// key count, then per key its length-prefixed bytes and length-prefixed
// offset list, followed (for internal nodes) by the child count and each
// child recursively.
func (t *Tree) Save(w io.Writer) error {
	return saveNode(t.root, w)
}

func saveNode(n *node, w io.Writer) error {
	if n == nil {
		return nil
	}
	if err := writeBool(w, n.isLeaf); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(len(n.keys))); err != nil {
		return err
	}
	for i, k := range n.keys {
		k = trim(k)
		if err := writeUint64(w, uint64(len(k))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, k); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(len(n.values[i]))); err != nil {
			return err
		}
		for _, v := range n.values[i] {
			if err := writeUint64(w, v); err != nil {
				return err
			}
		}
	}
	if !n.isLeaf {
		if err := writeUint64(w, uint64(len(n.children))); err != nil {
			return err
		}
		for _, c := range n.children {
			if err := saveNode(c, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load replaces the tree's contents with the preorder dump read from r.
// Any failure at any depth reverts the tree to a fresh, empty one rather
// than leaving a partially-loaded, possibly-inconsistent structure in
// place.
func (t *Tree) Load(r io.Reader) error {
	n, err := loadNode(r)
	if err != nil {
		t.root = newNode(true)
		return fmt.Errorf("index: load failed, reset to empty tree: %w", err)
	}
	t.root = n
	return nil
}

func loadNode(r io.Reader) (*node, error) {
	isLeaf, err := readBool(r)
	if err != nil {
		return nil, err
	}
	keyCount, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	n := newNode(isLeaf)
	n.keys = make([]string, keyCount)
	n.values = make([][]uint64, keyCount)
	for i := uint64(0); i < keyCount; i++ {
		keySize, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		keyBuf := make([]byte, keySize)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return nil, err
		}
		n.keys[i] = trim(string(keyBuf))

		valCount, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		vals := make([]uint64, valCount)
		for j := uint64(0); j < valCount; j++ {
			v, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			vals[j] = v
		}
		n.values[i] = vals
	}
	if !isLeaf {
		childCount, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		n.children = make([]*node, childCount)
		for i := uint64(0); i < childCount; i++ {
			child, err := loadNode(r)
			if err != nil {
				return nil, err
			}
			n.children[i] = child
		}
	}
	return n, nil
}

func writeBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
