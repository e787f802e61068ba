package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/indexer"
)

type queryHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

func (s *Server) queryHandlers() map[string]queryHandler {
	handlers := map[string]queryHandler{
		"lockbox_getLockbox":         s.getLockbox,
		"lockbox_getVersion":         s.getVersion,
		"lockbox_getShareHash":       s.getShareHash,
		"lockbox_isReaderAuthorized": s.isReaderAuthorized,
		"lockbox_getRequest":         s.getRequest,
		"lockbox_getResult":          s.getResult,
		"lockbox_getChallenge":       s.getChallenge,
		"lockbox_getActivity":        s.getActivity,
		"lockbox_getMembership":      s.getMembership,
		"lockbox_getStake":           s.getStake,
		"lockbox_getDeposit":         s.getDeposit,
		"lockbox_getFees":            s.getFees,
		"lockbox_getParams":          s.getParams,

		"bank_getBalance": s.getBalance,
		"bank_getAccount": s.getAccount,

		"ledger_head":       s.ledgerHead,
		"ledger_getReceipt": s.getReceipt,
		"ledger_getNonce":   s.getNonce,
	}
	if s.events != nil {
		handlers["events_query"] = s.queryEvents
	}
	return handlers
}

// queryParams is the union of every query's arguments. Each handler reads
// only the fields it needs.
type queryParams struct {
	LockboxID string `json:"lockboxId"`
	VersionID string `json:"versionId"`
	RequestID string `json:"requestId"`
	Node      string `json:"node"`
	Reader    string `json:"reader"`
	Owner     string `json:"owner"`
	Account   string `json:"account"`
	Namespace string `json:"namespace"`
	Height    uint64 `json:"height"`
}

func decodeQuery(raw json.RawMessage) (*queryParams, error) {
	var p queryParams
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// view decodes params and runs fn against a read-only snapshot.
func (s *Server) view(ctx context.Context, raw json.RawMessage, fn func(tx *ledger.Tx, p *queryParams) (interface{}, error)) (interface{}, error) {
	p, err := decodeQuery(raw)
	if err != nil {
		return nil, err
	}
	var out interface{}
	err = s.exec.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = fn(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) getLockbox(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		lb, err := s.engine.GetLockbox(tx, p.LockboxID)
		if err != nil {
			return nil, err
		}
		return newLockboxView(lb), nil
	})
}

func (s *Server) getVersion(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		v, err := s.engine.GetVersion(tx, p.VersionID)
		if err != nil {
			return nil, err
		}
		return newVersionView(v), nil
	})
}

func (s *Server) getShareHash(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		sh, err := s.engine.GetShareHash(tx, p.VersionID, p.Node)
		if err != nil {
			return nil, err
		}
		return &shareHashView{VersionID: p.VersionID, Node: p.Node, Hash: sh.Hash, Acknowledged: sh.Acknowledged}, nil
	})
}

func (s *Server) isReaderAuthorized(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		ok, err := s.engine.IsReaderAuthorized(tx, p.LockboxID, p.Reader)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"authorized": ok}, nil
	})
}

func (s *Server) getRequest(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		req, err := s.engine.GetRequest(tx, p.RequestID)
		if err != nil {
			return nil, err
		}
		return newRequestView(req), nil
	})
}

func (s *Server) getResult(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		res, err := s.engine.GetResult(tx, p.RequestID, p.Node)
		if err != nil {
			return nil, err
		}
		return newResultView(p.RequestID, p.Node, res), nil
	})
}

func (s *Server) getChallenge(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		c, err := s.engine.GetChallenge(tx, p.RequestID, p.Node)
		if err != nil {
			return nil, err
		}
		return &challengeView{
			RequestID: p.RequestID,
			Node:      p.Node,
			Kind:      c.Kind,
			Slashed:   c.Slashed,
			Amount:    c.Amount,
			At:        c.At,
		}, nil
	})
}

func (s *Server) getActivity(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		act, err := s.engine.GetActivity(tx, p.LockboxID, p.Node)
		if err != nil {
			return nil, err
		}
		return newActivityView(p.LockboxID, p.Node, act), nil
	})
}

func (s *Server) getMembership(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		m, err := s.engine.GetMembership(tx, p.Node)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"node": p.Node, "lockboxCount": m.LockboxCount}, nil
	})
}

func (s *Server) getStake(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		return s.engine.GetStake(tx, p.Owner)
	})
}

func (s *Server) getDeposit(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		return s.engine.GetDeposit(tx, p.LockboxID, p.Node)
	})
}

func (s *Server) getFees(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		return s.engine.GetFees(tx, p.LockboxID)
	})
}

func (s *Server) getParams(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, _ *queryParams) (interface{}, error) {
		params, err := s.engine.Params(tx)
		if err != nil {
			return nil, err
		}
		return newParamsView(params), nil
	})
}

type balanceView struct {
	Namespace string   `json:"namespace"`
	Account   string   `json:"account"`
	Balance   *big.Int `json:"balance"`
}

func (s *Server) getBalance(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		l, err := s.bankLedger(p.Namespace)
		if err != nil {
			return nil, err
		}
		balance, err := l.Balance(tx, p.Account)
		if err != nil {
			return nil, err
		}
		return &balanceView{Namespace: l.Namespace(), Account: p.Account, Balance: balance}, nil
	})
}

func (s *Server) getAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		l, err := s.bankLedger(p.Namespace)
		if err != nil {
			return nil, err
		}
		return l.Details(tx, p.Account)
	})
}

type headView struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

func (s *Server) ledgerHead(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	head, err := s.exec.Head(ctx)
	if err != nil {
		return nil, err
	}
	return &headView{Height: head.Height, Hash: hexString(head.Hash)}, nil
}

func (s *Server) getReceipt(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	p, err := decodeQuery(raw)
	if err != nil {
		return nil, err
	}
	receipt, ok, err := s.exec.Receipt(ctx, p.Height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound("get-receipt", "no receipt at height %d", p.Height)
	}
	return newReceiptView(receipt), nil
}

func (s *Server) getNonce(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return s.view(ctx, raw, func(tx *ledger.Tx, p *queryParams) (interface{}, error) {
		account, err := requireField("account", p.Account)
		if err != nil {
			return nil, err
		}
		nonce, err := tx.LastNonce(account)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"account": account, "nonce": nonce}, nil
	})
}

func (s *Server) queryEvents(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var filter indexer.Filter
	if err := decodePayload(raw, &filter); err != nil {
		return nil, err
	}
	filter.Type = strings.TrimSpace(filter.Type)
	if filter.ToHeight != 0 && filter.FromHeight > filter.ToHeight {
		return nil, invalidParams("fromHeight exceeds toHeight", nil)
	}
	return s.events.Query(ctx, filter)
}

func hexString(b []byte) string { return hex.EncodeToString(b) }
