package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Channel describes a payout destination: a bank or an e-wallet.
type Channel struct {
	ID   string         `json:"id"`
	Code string         `json:"code"`
	Name string         `json:"name"`
	Type string         `json:"type"`
	Raw  map[string]any `json:"raw"`
}

// ListChannels retrieves the list of payout channels. The result is cached
// in Redis when a cache is configured; cache failures fall through to the
// provider.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	const cacheKey = "provider:channels"
	if c.cache != nil {
		var cached []Channel
		ok, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("read channel cache failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	env, err := c.postForm(ctx, "/transfer/bank_list", url.Values{})
	if err != nil {
		return nil, err
	}
	rows, err := decodeSlice(env.Data)
	if err != nil {
		return nil, fmt.Errorf("parse channel list: %w", err)
	}

	channels := make([]Channel, 0, len(rows))
	for _, row := range rows {
		channels = append(channels, Channel{
			ID:   firstString(row, "id"),
			Code: firstString(row, "bank_code", "code"),
			Name: firstString(row, "bank_name", "name"),
			Type: firstString(row, "type"),
			Raw:  row,
		})
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey, channels, c.channelTTL); err != nil {
			c.logger.Warn("set channel cache failed", "error", err)
		}
	}
	return channels, nil
}

// RefreshChannels bypasses the cache and repopulates it.
func (c *Client) RefreshChannels(ctx context.Context) ([]Channel, error) {
	if c.cache != nil {
		if err := c.cache.Delete(ctx, "provider:channels"); err != nil {
			c.logger.Warn("drop channel cache failed", "error", err)
		}
	}
	return c.ListChannels(ctx)
}

// CheckAccountResponse describes an account ownership verification result.
type CheckAccountResponse struct {
	BankCode  string         `json:"bank_code"`
	AccountNo string         `json:"account_no"`
	OwnerName string         `json:"owner_name"`
	Status    string         `json:"status"`
	Raw       map[string]any `json:"raw"`
}

// CheckAccount validates an account number for a bank or e-wallet.
func (c *Client) CheckAccount(ctx context.Context, bankCode, accountNumber string) (*CheckAccountResponse, error) {
	form := url.Values{}
	form.Set("bank_code", bankCode)
	form.Set("account_number", accountNumber)
	env, err := c.postForm(ctx, "/transfer/cek_rekening", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, err
	}
	resp := &CheckAccountResponse{
		BankCode:  firstString(data, "kode_bank", "bank_code"),
		AccountNo: firstString(data, "nomor_akun", "account_number"),
		OwnerName: firstString(data, "nama_pemilik", "account_name"),
		Status:    normalizeTransactionStatus(firstString(data, "status")),
		Raw:       data,
	}
	if resp.BankCode == "" {
		resp.BankCode = bankCode
	}
	if resp.AccountNo == "" {
		resp.AccountNo = accountNumber
	}
	return resp, nil
}

// TransferRequest holds fund transfer parameters.
type TransferRequest struct {
	BankCode    string `json:"bank_code"`
	AccountNo   string `json:"account_no"`
	AccountName string `json:"account_name"`
	Amount      int64  `json:"amount"`
	RefID       string `json:"ref_id"`
	Note        string `json:"note,omitempty"`
}

// TransferResponse contains the created transfer as reported by the provider.
type TransferResponse struct {
	ID        string         `json:"id"`
	RefID     string         `json:"ref_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Amount    float64        `json:"amount"`
	Fee       float64        `json:"fee"`
	Total     float64        `json:"total"`
	CreatedAt string         `json:"created_at"`
	Raw       map[string]any `json:"raw"`
}

// CreateTransfer initiates a fund transfer.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	form := url.Values{}
	form.Set("reff_id", req.RefID)
	form.Set("kode_bank", req.BankCode)
	form.Set("nomor_akun", req.AccountNo)
	form.Set("nama_penerima", req.AccountName)
	form.Set("nominal", strconv.FormatInt(req.Amount, 10))
	if req.Note != "" {
		form.Set("catatan", req.Note)
	}

	env, err := c.postForm(ctx, "/transfer/create", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, err
	}
	resp := &TransferResponse{
		ID:        firstString(data, "id"),
		RefID:     firstString(data, "reff_id", "ref_id", "reference"),
		Status:    normalizeTransactionStatus(firstString(data, "status", "state")),
		Message:   firstString(data, "message", "info", "description"),
		Amount:    firstFloat(data, "nominal", "amount"),
		Fee:       firstFloat(data, "fee", "admin", "admin_fee"),
		Total:     firstFloat(data, "total", "total_amount"),
		CreatedAt: firstString(data, "created_at"),
		Raw:       data,
	}
	if resp.Total == 0 && resp.Amount > 0 {
		resp.Total = resp.Amount + resp.Fee
	}
	if resp.Message == "" {
		resp.Message = strings.TrimSpace(env.Message)
	}
	return resp, nil
}

// TransferStatusResponse contains transfer status info.
type TransferStatusResponse struct {
	ID      string         `json:"id"`
	RefID   string         `json:"ref_id"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Amount  float64        `json:"amount"`
	Fee     float64        `json:"fee"`
	Raw     map[string]any `json:"raw"`
}

// TransferStatus checks status of a transfer by provider ID.
func (c *Client) TransferStatus(ctx context.Context, transferID string) (*TransferStatusResponse, error) {
	form := url.Values{}
	form.Set("id", transferID)
	env, err := c.postForm(ctx, "/transfer/status", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, err
	}
	resp := &TransferStatusResponse{
		ID:      firstString(data, "id"),
		RefID:   firstString(data, "reff_id", "ref_id"),
		Status:  normalizeTransactionStatus(firstString(data, "status", "state")),
		Message: firstString(data, "message", "info", "description"),
		Amount:  firstFloat(data, "nominal", "amount"),
		Fee:     firstFloat(data, "fee", "admin_fee"),
		Raw:     data,
	}
	if resp.Message == "" {
		resp.Message = strings.TrimSpace(env.Message)
	}
	return resp, nil
}

// DepositRequest holds deposit parameters.
type DepositRequest struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
	RefID  string `json:"ref_id"`
	Type   string `json:"type,omitempty"`
}

// DepositResponse contains the created deposit.
type DepositResponse struct {
	ID        string         `json:"id"`
	RefID     string         `json:"ref_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Amount    float64        `json:"amount"`
	Fee       float64        `json:"fee"`
	NetAmount float64        `json:"net_amount"`
	QRString  string         `json:"qr_string"`
	ExpiredAt string         `json:"expired_at"`
	Raw       map[string]any `json:"raw"`
}

// CreateDeposit starts a deposit.
func (c *Client) CreateDeposit(ctx context.Context, req DepositRequest) (*DepositResponse, error) {
	form := url.Values{}
	form.Set("reff_id", req.RefID)
	form.Set("nominal", strconv.FormatInt(req.Amount, 10))
	form.Set("metode", req.Method)
	if req.Type != "" {
		form.Set("type", req.Type)
	}
	env, err := c.postForm(ctx, "/deposit/create", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, err
	}
	resp := &DepositResponse{
		ID:        firstString(data, "id"),
		RefID:     firstString(data, "reff_id", "ref_id", "reference"),
		Status:    normalizeTransactionStatus(firstString(data, "status", "state")),
		Message:   firstString(data, "message", "info", "description"),
		Amount:    firstFloat(data, "nominal", "amount"),
		Fee:       firstFloat(data, "fee", "admin_fee", "admin"),
		NetAmount: firstFloat(data, "get_balance", "net_amount", "saldo_masuk"),
		QRString:  firstString(data, "qr_string", "qr"),
		ExpiredAt: firstString(data, "expired_at", "expire_at"),
		Raw:       data,
	}
	if resp.NetAmount == 0 && resp.Amount > 0 && resp.Fee > 0 {
		resp.NetAmount = resp.Amount - resp.Fee
	}
	if resp.Message == "" {
		resp.Message = strings.TrimSpace(env.Message)
	}
	return resp, nil
}

// DepositStatusResponse contains deposit status info.
type DepositStatusResponse struct {
	ID     string         `json:"id"`
	RefID  string         `json:"ref_id"`
	Status string         `json:"status"`
	Method string         `json:"method"`
	Amount float64        `json:"amount"`
	Fee    float64        `json:"fee"`
	Raw    map[string]any `json:"raw"`
}

// DepositStatus checks deposit status by provider ID.
func (c *Client) DepositStatus(ctx context.Context, depositID string) (*DepositStatusResponse, error) {
	form := url.Values{}
	form.Set("id", depositID)
	env, err := c.postForm(ctx, "/deposit/status", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, err
	}
	return &DepositStatusResponse{
		ID:     firstString(data, "id"),
		RefID:  firstString(data, "reff_id", "ref_id"),
		Status: normalizeTransactionStatus(firstString(data, "status", "state")),
		Method: firstString(data, "metode", "method"),
		Amount: firstFloat(data, "nominal", "amount"),
		Fee:    firstFloat(data, "fee", "admin_fee"),
		Raw:    data,
	}, nil
}

// TestConnection reports provider reachability as a boolean plus a
// human-readable message. Used at startup and on the health-check timer;
// failures are logged by the caller, never escalated.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	channels, err := c.ListChannels(ctx)
	if err != nil {
		return false, ErrorMessage(err)
	}
	return true, fmt.Sprintf("provider reachable, %d payout channels", len(channels))
}
