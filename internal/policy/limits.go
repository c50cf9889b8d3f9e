package policy

// LimitPolicy bounds a user's money movements. All amounts are paise.
type LimitPolicy struct {
	DepositMin    int64 `json:"deposit_min"`
	DepositMax    int64 `json:"deposit_max"`
	WithdrawalMin int64 `json:"withdrawal_min"`
	EntryFeeMax   int64 `json:"entry_fee_max"`
}

// Evaluation holds the result of a limit check.
type Evaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int64  `json:"limit_value,omitempty"`
	RequestedAmt  int64  `json:"requested_amount,omitempty"`
}

// EvaluateDeposit checks a deposit amount against the policy bounds.
func EvaluateDeposit(policy LimitPolicy, amount int64) Evaluation {
	if amount < policy.DepositMin {
		return Evaluation{
			Allowed:       false,
			BreachedLimit: "deposit_min",
			LimitValue:    policy.DepositMin,
			RequestedAmt:  amount,
		}
	}
	if policy.DepositMax > 0 && amount > policy.DepositMax {
		return Evaluation{
			Allowed:       false,
			BreachedLimit: "deposit_max",
			LimitValue:    policy.DepositMax,
			RequestedAmt:  amount,
		}
	}
	return Evaluation{Allowed: true}
}

// EvaluateWithdrawal checks a withdrawal amount against the policy minimum.
func EvaluateWithdrawal(policy LimitPolicy, amount int64) Evaluation {
	if amount < policy.WithdrawalMin {
		return Evaluation{
			Allowed:       false,
			BreachedLimit: "withdrawal_min",
			LimitValue:    policy.WithdrawalMin,
			RequestedAmt:  amount,
		}
	}
	return Evaluation{Allowed: true}
}

// EvaluateEntryFee checks a matchmaking stake against the per-game cap.
// Zero is always allowed; free rooms carry no stake.
func EvaluateEntryFee(policy LimitPolicy, fee int64) Evaluation {
	if fee < 0 {
		return Evaluation{
			Allowed:       false,
			BreachedLimit: "entry_fee_negative",
			RequestedAmt:  fee,
		}
	}
	if policy.EntryFeeMax > 0 && fee > policy.EntryFeeMax {
		return Evaluation{
			Allowed:       false,
			BreachedLimit: "entry_fee_max",
			LimitValue:    policy.EntryFeeMax,
			RequestedAmt:  fee,
		}
	}
	return Evaluation{Allowed: true}
}
