package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"go.uber.org/zap"
)

// Picking states reported by the ERP.
const (
	pickingStateDone   = "done"
	pickingStateCancel = "cancel"
)

// FulfillmentDriver assigns and validates the pickings of a confirmed order
type FulfillmentDriver struct {
	gateway RPCGateway
	logger  *zap.Logger
}

// NewFulfillmentDriver creates a new fulfillment driver
func NewFulfillmentDriver(gateway RPCGateway) *FulfillmentDriver {
	return &FulfillmentDriver{
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

// ListBatches returns the picking ids generated when the order was confirmed
func (d *FulfillmentDriver) ListBatches(ctx context.Context, orderID int64) ([]int64, error) {
	raw, err := d.gateway.Call(ctx, erp.ResourceSaleOrder, erp.OpRead, erp.IDs(orderID),
		map[string]any{"fields": []string{"picking_ids"}})
	if err != nil {
		return nil, fmt.Errorf("failed to read order pickings: %w", err)
	}

	var orders []struct {
		PickingIDs []int64 `json:"picking_ids"`
	}
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode order pickings: %w", err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %d not found", orderID)
	}
	return orders[0].PickingIDs, nil
}

// ProcessAll processes every batch of the order independently. A failed batch is recorded
// and the loop continues; once ctx is done the remaining batches are marked skipped.
// The returned error only reports that the batches could not be listed.
func (d *FulfillmentDriver) ProcessAll(ctx context.Context, orderID int64) ([]models.FulfillmentBatch, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentDriver.ProcessAll")
	defer span.End()

	batchIDs, err := d.ListBatches(ctx, orderID)
	if err != nil {
		d.logger.Error("Failed to list fulfillment batches",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil, err
	}

	batches := make([]models.FulfillmentBatch, 0, len(batchIDs))
	for _, batchID := range batchIDs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			util.FulfillmentBatchesTotal.WithLabelValues("skipped").Inc()
			batches = append(batches, models.FulfillmentBatch{
				ID:      batchID,
				OrderID: orderID,
				State:   models.BatchStateSkipped,
				Error:   ctxErr.Error(),
			})
			continue
		}
		batches = append(batches, d.ProcessBatch(ctx, orderID, batchID))
	}

	return batches, nil
}

// ProcessBatch reserves stock for one batch, then validates it.
func (d *FulfillmentDriver) ProcessBatch(ctx context.Context, orderID, batchID int64) models.FulfillmentBatch {
	batch := models.FulfillmentBatch{
		ID:      batchID,
		OrderID: orderID,
		State:   models.BatchStateToAssign,
	}

	if err := d.processBatch(ctx, &batch); err != nil {
		batch.State = models.BatchStateFailed
		batch.Error = err.Error()
		util.FulfillmentBatchesTotal.WithLabelValues("failed").Inc()
		d.logger.Error("Fulfillment batch failed",
			zap.Int64("order_id", orderID),
			zap.Int64("batch_id", batchID),
			zap.String("batch", batch.Name),
			zap.Error(err))
		return batch
	}

	util.FulfillmentBatchesTotal.WithLabelValues("validated").Inc()
	d.logger.Info("Fulfillment batch validated",
		zap.Int64("order_id", orderID),
		zap.Int64("batch_id", batchID),
		zap.String("batch", batch.Name))
	return batch
}

func (d *FulfillmentDriver) processBatch(ctx context.Context, batch *models.FulfillmentBatch) error {
	raw, err := d.gateway.Call(ctx, erp.ResourcePicking, erp.OpRead, erp.IDs(batch.ID),
		map[string]any{"fields": []string{"name", "state"}})
	if err != nil {
		return &FulfillmentStepError{BatchID: batch.ID, Step: "read", Cause: err}
	}

	var pickings []struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &pickings); err != nil || len(pickings) == 0 {
		return &FulfillmentStepError{BatchID: batch.ID, Step: "read", Cause: errors.New("picking not found")}
	}
	batch.Name = pickings[0].Name

	switch pickings[0].State {
	case pickingStateDone:
		batch.State = models.BatchStateValidated
		return nil
	case pickingStateCancel:
		return &FulfillmentStepError{BatchID: batch.ID, Step: "read", Cause: errors.New("picking is cancelled")}
	}

	if _, err := d.gateway.Call(ctx, erp.ResourcePicking, erp.OpActionAssign, erp.IDs(batch.ID), nil); err != nil {
		return &FulfillmentStepError{BatchID: batch.ID, Step: "assign", Cause: err}
	}
	batch.State = models.BatchStateAssigned

	raw, err = d.gateway.Call(ctx, erp.ResourcePicking, erp.OpValidate, erp.IDs(batch.ID), nil)
	if err != nil {
		return &FulfillmentStepError{BatchID: batch.ID, Step: "validate", Cause: err}
	}
	if wizard := pendingWizard(raw); wizard != "" {
		return &FulfillmentStepError{
			BatchID: batch.ID,
			Step:    "validate",
			Cause:   fmt.Errorf("validation needs manual confirmation (%s)", wizard),
		}
	}

	batch.State = models.BatchStateValidated
	return nil
}

// pendingWizard returns the model of the dialog the ERP opened instead of validating,
// e.g. a backorder or immediate-transfer confirmation.
func pendingWizard(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var action struct {
		ResModel string `json:"res_model"`
	}
	if err := json.Unmarshal(trimmed, &action); err != nil || action.ResModel == "" {
		return ""
	}
	return action.ResModel
}
