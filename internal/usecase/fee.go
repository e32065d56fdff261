package usecase

import (
	"fmt"
	"math"

	"keychain-agent/internal/domain"
)

// EstimateFee はバッチサイズから手数料とガス上限を計算する。
// 手数料はトランザクション単位の定額で、ガスのみ操作数に比例する。
func EstimateFee(flatFee []domain.Coin, perRequestGas uint64, batchSize int) (domain.FeeBudget, error) {
	if batchSize <= 0 {
		return domain.FeeBudget{}, fmt.Errorf("%w: %d", domain.ErrInvalidBatchSize, batchSize)
	}
	n := uint64(batchSize)
	if perRequestGas != 0 && n > math.MaxUint64/perRequestGas {
		return domain.FeeBudget{}, fmt.Errorf("%w: gas limit overflows for %d operations", domain.ErrInvalidBatchSize, batchSize)
	}

	amount := make([]domain.Coin, len(flatFee))
	copy(amount, flatFee)
	return domain.FeeBudget{
		Amount:   amount,
		GasLimit: perRequestGas * n,
	}, nil
}
