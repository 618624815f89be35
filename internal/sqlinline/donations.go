package sqlinline

const QEnsureLedgerPeriod = `--sql b5ff99d0-183c-4896-970c-8d66fc521f64
insert into ledger_periods(period_key, total_income, total_expense, balance, updated_at)
values ($1::text, 0, 0, 0, now())
on conflict (period_key) do nothing;
`

const QInsertDonation = `--sql 63169725-5267-4756-8133-321c30926940
insert into donations(id, donor_reference, amount, note, period_key, status, external_transaction_ref, created_at, updated_at)
values ($1::uuid, nullif($2::text, ''), $3::numeric, $4::text, $5::text, 'PENDING', $6::text, $7::timestamptz, $7::timestamptz)
returning id::text, donor_reference, amount, note, period_key, status, external_transaction_ref, created_at, last_transition_at, updated_at;
`

const QSelectDonationByID = `--sql 6ba34269-4796-4a9b-b963-0d17fca2e111
select id::text, donor_reference, amount, note, period_key, status, external_transaction_ref, created_at, last_transition_at, updated_at
from donations
where id = $1::uuid;
`

const QSelectDonationByExternalRef = `--sql 90d26f35-af7e-45f4-aa57-6fc49dbb115b
select id::text, donor_reference, amount, note, period_key, status, external_transaction_ref, created_at, last_transition_at, updated_at
from donations
where external_transaction_ref = $1::text;
`

const QListStalePendingDonations = `--sql 80dab11b-e985-4e6d-904b-726b71c307c2
select id::text, donor_reference, amount, note, period_key, status, external_transaction_ref, created_at, last_transition_at, updated_at
from donations
where status = 'PENDING' and created_at < $1::timestamptz
order by created_at asc
limit $2::int;
`

// QLockDonation takes the row lock that serializes every transition of a
// single donation.
const QLockDonation = `--sql a3e4d734-878e-4ac3-9085-6278c8789da6
select id::text, donor_reference, amount, note, period_key, status, external_transaction_ref, created_at, last_transition_at, updated_at
from donations
where id = $1::uuid
for update;
`

// QUpdateDonationStatus only moves rows still PENDING; zero affected rows
// means the lock contract was broken.
const QUpdateDonationStatus = `--sql 9b658fcc-a042-4ce6-8cd4-e5ef3453c542
update donations
set status = $2::text, last_transition_at = $3::timestamptz, updated_at = $3::timestamptz
where id = $1::uuid and status = 'PENDING';
`

const QInsertDonationTransition = `--sql ea647ffc-efd1-4a7a-9c82-542bca819e99
insert into donation_transitions(donation_id, source_event_id, source, from_status, to_status, amount, period_key, created_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::numeric, $7::text, $8::timestamptz);
`

const QInsertTransitionConflict = `--sql bd2eb3f6-a896-4389-b013-d4a712ca2577
insert into donation_transition_conflicts(donation_id, source_event_id, source, current_status, requested_status, created_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::timestamptz);
`
