package sqlinline

// QAddLedgerIncome applies an accepted donation as an additive delta. The
// period row lock is taken by the update itself, after the donation lock.
const QAddLedgerIncome = `--sql d557aeed-1898-4389-9eca-d5bf54db9bb7
update ledger_periods
set total_income = total_income + $2::numeric,
    balance = total_income + $2::numeric - total_expense,
    updated_at = $3::timestamptz
where period_key = $1::text
returning period_key, total_income, total_expense, balance, updated_at;
`

const QSelectLedgerPeriod = `--sql 1d8a6dd9-eac2-4b77-8f16-0f271fe0bd36
select period_key, total_income, total_expense, balance, updated_at
from ledger_periods
where period_key = $1::text;
`

const QListLedgerPeriods = `--sql 7e0a49f3-4a18-47e9-b899-6ef294fc677a
select period_key, total_income, total_expense, balance, updated_at
from ledger_periods
order by period_key desc
limit $1::int;
`

const QVerifyLedgerPeriod = `--sql 05758c75-dcfb-4af2-8f7f-3e153385626a
select p.period_key,
       p.total_income,
       coalesce((select sum(d.amount) from donations d where d.period_key = p.period_key and d.status = 'ACCEPTED'), 0),
       p.balance,
       p.total_expense
from ledger_periods p
where p.period_key = $1::text;
`
