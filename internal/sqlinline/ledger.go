package sqlinline

const QInsertCostEntry = `--sql 7c2f1b9e-4d6a-4f03-9a51-2b8e6c4d0f17
insert into cost_ledger(id, job_id, user_id, tokens, cost_usd, cached, duration_ms, created_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), $4::numeric, $5::boolean, $6::bigint, now());
`

const QSelectDailySpend = `--sql 3fa8d2c1-9b74-4e6f-8c05-d1a7e5b20c94
select coalesce(sum(cost_usd), 0)
from cost_ledger
where created_at >= date_trunc('day', now());
`
