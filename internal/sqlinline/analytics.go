package sqlinline

const QInsertRequestEvent = `--sql 5f08b617-ae72-4255-b9a3-045c5fd46091
insert into request_events (method, path, country, created_at)
values ($1, $2, nullif($3, ''), now());
`

const QSelectRequestCountries24h = `--sql cb67ab7f-6cfa-433d-afce-b856edf5078e
select coalesce(country, 'unknown') as country, count(*) as total
from request_events
where created_at >= now() - interval '24 hours'
group by 1
order by total desc;
`
