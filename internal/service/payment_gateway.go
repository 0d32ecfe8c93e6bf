package service

import (
	"context"

	"storefront-engine/pkg/vnpay"
)

// VNPayGateway adapts the vnpay client to PaymentGateway.
type VNPayGateway struct {
	client    *vnpay.Client
	returnURL string
}

func NewVNPayGateway(client *vnpay.Client, returnURL string) *VNPayGateway {
	return &VNPayGateway{client: client, returnURL: returnURL}
}

func (g *VNPayGateway) CreatePaymentURL(_ context.Context, req PaymentRequest) (string, error) {
	return g.client.PaymentURL(vnpay.PaymentParams{
		TxnRef:    req.OrderCode,
		Amount:    req.Amount,
		ReturnURL: g.returnURL,
		IPAddr:    req.ClientIP,
	})
}

func (g *VNPayGateway) VerifyCallback(_ context.Context, params map[string]string) (*PaymentCallback, error) {
	res, err := g.client.Verify(params)
	if err != nil {
		return nil, err
	}
	return &PaymentCallback{
		Success:       res.Success,
		OrderCode:     res.TxnRef,
		TransactionID: res.TransactionNo,
		Amount:        res.Amount,
		ResponseCode:  res.ResponseCode,
		Params:        res.Params,
	}, nil
}
