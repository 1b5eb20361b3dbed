package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// TreeStore implements storage.TreeStore using PostgreSQL.
type TreeStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.TreeStore = (*TreeStore)(nil)

const treeNodeSelect = `
	SELECT participant_id, kind, parent_id, left_child_id, right_child_id, leg,
		left_business::text, right_business::text,
		left_carry::text, right_carry::text,
		left_matched::text, right_matched::text,
		left_downlines, right_downlines, direct_children,
		earning_cap::text, binary_earned::text,
		version, created_at, updated_at
	FROM tree_nodes
`

// Insert adds a new node with Version 0. Returns ErrDuplicateKey if the participant is placed.
func (s *TreeStore) Insert(ctx context.Context, n *domain.TreeNode) error {
	query := `
		INSERT INTO tree_nodes (
			participant_id, kind, parent_id, left_child_id, right_child_id, leg,
			left_business, right_business, left_carry, right_carry, left_matched, right_matched,
			left_downlines, right_downlines, direct_children, earning_cap, binary_earned,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 0, $18, $19)
	`

	_, err := s.q.Exec(ctx, query,
		n.ParticipantID,
		string(n.Kind),
		nullString(n.ParentID),
		nullString(n.LeftChildID),
		nullString(n.RightChildID),
		string(n.Leg),
		numeric(n.LeftBusiness),
		numeric(n.RightBusiness),
		numeric(n.LeftCarry),
		numeric(n.RightCarry),
		numeric(n.LeftMatched),
		numeric(n.RightMatched),
		n.LeftDownlines,
		n.RightDownlines,
		n.DirectChildren,
		nullableNumeric(n.EarningCap),
		numeric(n.BinaryEarned),
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert tree node: %w", err)
	}
	n.Version = 0
	return nil
}

// GetByID retrieves the node of a participant. Returns ErrNotFound if not exists.
func (s *TreeStore) GetByID(ctx context.Context, participantID string) (*domain.TreeNode, error) {
	n, err := scanTreeNode(s.q.QueryRow(ctx, treeNodeSelect+` WHERE participant_id = $1`, participantID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tree node: %w", err)
	}
	return n, nil
}

// GetRoot retrieves the root node. Returns ErrNotFound if there is none.
func (s *TreeStore) GetRoot(ctx context.Context) (*domain.TreeNode, error) {
	n, err := scanTreeNode(s.q.QueryRow(ctx, treeNodeSelect+` WHERE kind = 'root'`))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get root node: %w", err)
	}
	return n, nil
}

// Update writes n if the stored version equals n.Version, then increments n.Version.
func (s *TreeStore) Update(ctx context.Context, n *domain.TreeNode) error {
	query := `
		UPDATE tree_nodes SET
			left_child_id = $3, right_child_id = $4,
			left_business = $5, right_business = $6,
			left_carry = $7, right_carry = $8,
			left_matched = $9, right_matched = $10,
			left_downlines = $11, right_downlines = $12, direct_children = $13,
			earning_cap = $14, binary_earned = $15,
			updated_at = $16,
			version = version + 1
		WHERE participant_id = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		n.ParticipantID,
		n.Version,
		nullString(n.LeftChildID),
		nullString(n.RightChildID),
		numeric(n.LeftBusiness),
		numeric(n.RightBusiness),
		numeric(n.LeftCarry),
		numeric(n.RightCarry),
		numeric(n.LeftMatched),
		numeric(n.RightMatched),
		n.LeftDownlines,
		n.RightDownlines,
		n.DirectChildren,
		nullableNumeric(n.EarningCap),
		numeric(n.BinaryEarned),
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tree node: %w", err)
	}
	if err := versionedResult(ctx, s.q, tag.RowsAffected(),
		`SELECT 1 FROM tree_nodes WHERE participant_id = $1`, n.ParticipantID); err != nil {
		return err
	}
	n.Version++
	return nil
}

// GetAll retrieves every node ordered by creation.
func (s *TreeStore) GetAll(ctx context.Context) ([]*domain.TreeNode, error) {
	return s.query(ctx, treeNodeSelect+` ORDER BY seq ASC`)
}

// GetWithUnmatched retrieves nodes with business not yet consumed by a cycle.
func (s *TreeStore) GetWithUnmatched(ctx context.Context) ([]*domain.TreeNode, error) {
	return s.query(ctx, treeNodeSelect+`
		WHERE left_business > left_matched OR right_business > right_matched
		ORDER BY seq ASC`)
}

func (s *TreeStore) query(ctx context.Context, query string) ([]*domain.TreeNode, error) {
	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tree nodes: %w", err)
	}
	defer rows.Close()

	var result []*domain.TreeNode
	for rows.Next() {
		n, err := scanTreeNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tree node: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree nodes: %w", err)
	}
	return result, nil
}

func scanTreeNode(row pgx.Row) (*domain.TreeNode, error) {
	var (
		n                         domain.TreeNode
		kind, leg                 string
		parentID, leftID, rightID *string
		amounts                   [7]string
		earningCap                *string
	)

	err := row.Scan(
		&n.ParticipantID, &kind, &parentID, &leftID, &rightID, &leg,
		&amounts[0], &amounts[1],
		&amounts[2], &amounts[3],
		&amounts[4], &amounts[5],
		&n.LeftDownlines, &n.RightDownlines, &n.DirectChildren,
		&earningCap, &amounts[6],
		&n.Version, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Kind = domain.NodeKind(kind)
	n.Leg = domain.Leg(leg)
	n.ParentID = derefString(parentID)
	n.LeftChildID = derefString(leftID)
	n.RightChildID = derefString(rightID)

	if err := parseNumerics(amounts[:],
		&n.LeftBusiness, &n.RightBusiness,
		&n.LeftCarry, &n.RightCarry,
		&n.LeftMatched, &n.RightMatched,
		&n.BinaryEarned,
	); err != nil {
		return nil, err
	}
	if earningCap != nil {
		c, err := parseNumeric(*earningCap)
		if err != nil {
			return nil, err
		}
		n.EarningCap = &c
	}
	return &n, nil
}
